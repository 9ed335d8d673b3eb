package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/mcardwell78/RBAconnector-sub000/internal/controller"
	"github.com/mcardwell78/RBAconnector-sub000/internal/db"
	"github.com/mcardwell78/RBAconnector-sub000/internal/handler"
	"github.com/mcardwell78/RBAconnector-sub000/internal/queue"
	"github.com/mcardwell78/RBAconnector-sub000/internal/repository"
	"github.com/mcardwell78/RBAconnector-sub000/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()
	q := queue.NewInMemoryQueue()

	contactRepo := &repository.ContactRepository{DB: db.DB}
	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	enrollmentRepo := &repository.EnrollmentRepository{DB: db.DB}
	sendRepo := &repository.ScheduledSendRepository{DB: db.DB}

	enrollmentService := &service.EnrollmentService{
		CampaignRepo:   campaignRepo,
		ContactRepo:    contactRepo,
		EnrollmentRepo: enrollmentRepo,
	}
	ledgerService := &service.LedgerService{
		CampaignRepo:   campaignRepo,
		EnrollmentRepo: enrollmentRepo,
		SendRepo:       sendRepo,
	}
	lifecycleService := &service.LifecycleService{
		EnrollmentRepo: enrollmentRepo,
		SendRepo:       sendRepo,
		Ledger:         ledgerService,
	}
	dispatchService := &service.DispatchService{
		CampaignRepo:   campaignRepo,
		ContactRepo:    contactRepo,
		EnrollmentRepo: enrollmentRepo,
		SendRepo:       sendRepo,
		Lifecycle:      lifecycleService,
		Send:           service.MockSender,
	}

	queue.StartScheduledSendSubscriber(q, dispatchService)
	go dispatchDue(q, sendRepo)

	enrollmentController := controller.NewEnrollmentController(enrollmentService, ledgerService, lifecycleService)
	statsHandler := &handler.EnrollmentStatsHandler{EnrollmentRepo: enrollmentRepo}

	r := chi.NewRouter()

	// Enrollment routes
	r.Post("/campaigns/{id}/enroll", enrollmentController.Enroll)
	r.Post("/campaigns/{id}/bulk-enroll", enrollmentController.BulkEnroll)
	r.Get("/campaigns/{id}/enrollments", enrollmentController.ListForCampaign)
	r.Get("/campaigns/{id}/enrollment-stats", statsHandler.GetCampaignEnrollmentStats)
	r.Get("/contacts/{id}/enrollments", enrollmentController.ListForContact)

	// Scheduling and ledger routes
	r.Post("/enrollments/schedule", enrollmentController.ScheduleSteps)
	r.Put("/enrollments/{id}/steps/{index}", enrollmentController.RewriteStep)
	r.Get("/enrollments/{id}/next-send", enrollmentController.NextSend)

	// Lifecycle routes
	r.Post("/enrollments/{id}/withdraw", enrollmentController.Withdraw)
	r.Post("/enrollments/{id}/complete", enrollmentController.Complete)
	r.Post("/enrollments/{id}/pause", enrollmentController.Pause)
	r.Post("/enrollments/{id}/resume", enrollmentController.Resume)
	r.Post("/enrollments/{id}/promote", enrollmentController.Promote)
	r.Patch("/enrollments/{id}", enrollmentController.UpdateEnrollment)
	r.Delete("/enrollments/{id}", enrollmentController.RemoveEnrollment)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Println("🚀 Server running on", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}

// dispatchDue polls for pending sends whose time has come and feeds them to
// the in-process queue.
func dispatchDue(q queue.Queue, sendRepo repository.ScheduledSendRepositoryInterface) {
	interval := 30 * time.Second
	if v := os.Getenv("DISPATCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}

	for {
		due, err := sendRepo.ListDue(time.Now(), 100)
		if err != nil {
			log.Println("⚠️ failed to list due sends:", err)
		}
		for _, snd := range due {
			if err := q.Publish(queue.TopicScheduledSends, snd.ID); err != nil {
				log.Println("⚠️ failed to enqueue send", snd.ID, ":", err)
			}
		}
		time.Sleep(interval)
	}
}

// internal/controller/enrollment_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
	"github.com/mcardwell78/RBAconnector-sub000/internal/service"
)

type EnrollmentController struct {
	EnrollmentService *service.EnrollmentService
	LedgerService     *service.LedgerService
	LifecycleService  *service.LifecycleService
	Validate          *validator.Validate
}

func NewEnrollmentController(es *service.EnrollmentService, ls *service.LedgerService, lf *service.LifecycleService) *EnrollmentController {
	return &EnrollmentController{
		EnrollmentService: es,
		LedgerService:     ls,
		LifecycleService:  lf,
		Validate:          validator.New(),
	}
}

// actingUser reads the tenant from the X-User-ID header. Empty means the
// request is unauthenticated.
func actingUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func writeError(w http.ResponseWriter, err error) {
	var (
		notOwned      *appErrors.ErrContactNotOwned
		campaignGone  *appErrors.ErrCampaignNotFound
		enrollGone    *appErrors.ErrEnrollmentNotFound
		pastAnchor    *appErrors.ErrPastAnchor
		invalidDelay  *appErrors.ErrInvalidDelay
		stepImmutable *appErrors.ErrStepImmutable
		badTransition *appErrors.ErrInvalidTransition
	)
	switch {
	case errors.As(err, &notOwned):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &campaignGone), errors.As(err, &enrollGone):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &pastAnchor), errors.As(err, &invalidDelay),
		errors.As(err, &stepImmutable), errors.As(err, &badTransition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func campaignParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// Enroll handles POST /campaigns/{id}/enroll
func (c *EnrollmentController) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := campaignParam(w, r)
	if !ok {
		return
	}

	var body struct {
		ContactIDs     []int                             `json:"contact_ids" validate:"required,min=1"`
		ReEnrollChoice map[string]service.ReEnrollChoice `json:"re_enroll_choice,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Validate.Struct(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	choices := map[int]service.ReEnrollChoice{}
	for key, ch := range body.ReEnrollChoice {
		contactID, err := strconv.Atoi(key)
		if err != nil {
			http.Error(w, "invalid contact id in re_enroll_choice: "+key, http.StatusBadRequest)
			return
		}
		choices[contactID] = ch
	}

	result, err := c.EnrollmentService.Enroll(userID, campaignID, body.ContactIDs, choices)
	if err != nil {
		if result == nil {
			writeError(w, err)
			return
		}
		// Partial results still matter to the caller; surface both.
		writeJSON(w, map[string]interface{}{"result": result, "error": err.Error()})
		return
	}
	writeJSON(w, result)
}

// BulkEnroll handles POST /campaigns/{id}/bulk-enroll
func (c *EnrollmentController) BulkEnroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := campaignParam(w, r)
	if !ok {
		return
	}

	var body struct {
		ContactIDs             []int             `json:"contact_ids" validate:"required,min=1"`
		QueueIfAlreadyEnrolled bool              `json:"queue_if_already_enrolled"`
		StepDelays             []model.DelaySpec `json:"step_delays,omitempty"`
		InitialDelay           *model.DelaySpec  `json:"initial_delay,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Validate.Struct(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := c.EnrollmentService.BulkEnrollOrQueue(userID, campaignID, body.ContactIDs, service.BulkEnrollOptions{
		QueueIfAlreadyEnrolled: body.QueueIfAlreadyEnrolled,
		StepDelays:             body.StepDelays,
		InitialDelay:           body.InitialDelay,
	})
	if err != nil {
		if result == nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{"result": result, "error": err.Error()})
		return
	}
	writeJSON(w, result)
}

// ScheduleSteps handles POST /enrollments/schedule
func (c *EnrollmentController) ScheduleSteps(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req service.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := c.LedgerService.ScheduleSteps(userID, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "scheduled"})
}

// RewriteStep handles PUT /enrollments/{id}/steps/{index}
func (c *EnrollmentController) RewriteStep(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	enrollmentID := chi.URLParam(r, "id")
	stepIndex, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid step index", http.StatusBadRequest)
		return
	}

	var spec model.DelaySpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "invalid delay spec: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := c.enrollmentOwned(userID, enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	if err := c.LedgerService.RewriteStep(enrollmentID, stepIndex, spec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "rewritten"})
}

// NextSend handles GET /enrollments/{id}/next-send
func (c *EnrollmentController) NextSend(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	enrollmentID := chi.URLParam(r, "id")
	if _, err := c.enrollmentOwned(userID, enrollmentID); err != nil {
		writeError(w, err)
		return
	}

	next, err := c.LedgerService.NextPending(enrollmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"next": next})
}

// Withdraw handles POST /enrollments/{id}/withdraw
func (c *EnrollmentController) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	result, err := c.LifecycleService.Withdraw(userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// Complete handles POST /enrollments/{id}/complete
func (c *EnrollmentController) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	enrollmentID := chi.URLParam(r, "id")
	if _, err := c.enrollmentOwned(userID, enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	if err := c.LifecycleService.Complete(enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "completed"})
}

// Pause handles POST /enrollments/{id}/pause
func (c *EnrollmentController) Pause(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	enrollmentID := chi.URLParam(r, "id")
	if _, err := c.enrollmentOwned(userID, enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	if err := c.LifecycleService.Pause(enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "paused"})
}

// Resume handles POST /enrollments/{id}/resume
func (c *EnrollmentController) Resume(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	enrollmentID := chi.URLParam(r, "id")
	if _, err := c.enrollmentOwned(userID, enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	if err := c.LifecycleService.Resume(enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "active"})
}

// Promote handles POST /enrollments/{id}/promote
func (c *EnrollmentController) Promote(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	enrollmentID := chi.URLParam(r, "id")
	if _, err := c.enrollmentOwned(userID, enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	if err := c.LifecycleService.PromoteQueued(enrollmentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "active"})
}

// UpdateEnrollment handles PATCH /enrollments/{id}
func (c *EnrollmentController) UpdateEnrollment(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var patch service.EnrollmentPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	e, err := c.EnrollmentService.UpdateEnrollment(userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, e)
}

// RemoveEnrollment handles DELETE /enrollments/{id}
func (c *EnrollmentController) RemoveEnrollment(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	if err := c.EnrollmentService.RemoveEnrollment(userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "removed"})
}

// ListForCampaign handles GET /campaigns/{id}/enrollments
func (c *EnrollmentController) ListForCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := campaignParam(w, r)
	if !ok {
		return
	}
	enrollments, err := c.EnrollmentService.GetEnrollmentsForCampaign(userID, campaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"data": enrollments})
}

// ListForContact handles GET /contacts/{id}/enrollments
func (c *EnrollmentController) ListForContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	contactID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid contact id", http.StatusBadRequest)
		return
	}
	enrollments, err := c.EnrollmentService.GetEnrollmentsForContact(userID, contactID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"data": enrollments})
}

func (c *EnrollmentController) enrollmentOwned(userID, enrollmentID string) (*model.Enrollment, error) {
	e, err := c.EnrollmentService.EnrollmentRepo.GetByID(enrollmentID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, appErrors.NewEnrollmentNotFound(enrollmentID)
	}
	if e.UserID != userID {
		return nil, appErrors.NewContactNotOwned(e.ContactID, userID)
	}
	return e, nil
}

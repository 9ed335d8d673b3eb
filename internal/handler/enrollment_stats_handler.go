// internal/handler/enrollment_stats_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mcardwell78/RBAconnector-sub000/internal/repository"
)

// EnrollmentStatsHandler serves aggregate enrollment numbers for a campaign.
type EnrollmentStatsHandler struct {
	EnrollmentRepo repository.EnrollmentRepositoryInterface
}

// GetCampaignEnrollmentStats handles GET /campaigns/{id}/enrollment-stats
func (h *EnrollmentStatsHandler) GetCampaignEnrollmentStats(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusUnauthorized)
		return
	}

	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	counts, err := h.EnrollmentRepo.StatusCounts(id, userID)
	if err != nil {
		http.Error(w, "failed to fetch stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id": id,
		"total":       total,
		"by_status":   counts,
	})
}

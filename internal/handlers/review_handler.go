package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/skillx/backend/internal/middleware"
	"github.com/skillx/backend/internal/services"
)

// ReviewHandler serves POST /api/v1/reviews.
type ReviewHandler struct {
	Reviews *services.ReviewService
	Logger  *slog.Logger
}

type createReviewRequest struct {
	RequestID string `json:"request_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		http.Error(w, `{"error":"invalid request_id"}`, http.StatusBadRequest)
		return
	}

	review, err := h.Reviews.Create(r.Context(), *actor, requestID, req.Rating, req.Comment)
	if err != nil {
		writeServiceError(w, h.Logger, err, "create review")
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

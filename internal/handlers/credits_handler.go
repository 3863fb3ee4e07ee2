package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/skillx/backend/internal/middleware"
	"github.com/skillx/backend/internal/services"
)

// CreditsHandler serves POST /api/v1/add-credits.
type CreditsHandler struct {
	Engine *services.EscrowEngine
	Logger *slog.Logger
}

type addCreditsRequest struct {
	UserID          string `json:"userId"`
	Amount          int64  `json:"amount"`
	TransactionHash string `json:"transactionHash"`
}

type addCreditsResponse struct {
	UserID  string `json:"userId"`
	Credits int64  `json:"credits"`
}

func (h *CreditsHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req addCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, `{"error":"invalid userId"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error":"amount must be > 0"}`, http.StatusBadRequest)
		return
	}
	// Purchases credit only the caller's own balance unless an admin acts.
	if userID != actor.ID && !actor.Admin() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot credit another user"})
		return
	}

	balance, err := h.Engine.PurchaseCredits(r.Context(), userID, req.Amount, req.TransactionHash)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeServiceError(w, h.Logger, err, "add credits")
		return
	}

	writeJSON(w, http.StatusOK, addCreditsResponse{UserID: userID.String(), Credits: balance})
}

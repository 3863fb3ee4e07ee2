package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/skillx/backend/internal/middleware"
	"github.com/skillx/backend/internal/models"
	"github.com/skillx/backend/internal/services"
)

// EscrowLookup reads an escrow account outside a settlement transaction.
type EscrowLookup interface {
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.EscrowAccount, error)
}

// EscrowHandler serves /api/v1/escrow: POST for the consolidated settlement
// endpoint and GET /escrow/{requestId} for account status. Every release and
// refund goes through the engine; the handler never re-implements
// authorization or state checks.
type EscrowHandler struct {
	Engine *services.EscrowEngine
	Lookup EscrowLookup
	Logger *slog.Logger
}

type escrowActionRequest struct {
	RequestID string `json:"requestId"`
	Action    string `json:"action"`
}

type escrowActionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    escrowActionData `json:"data"`
}

type escrowActionData struct {
	Amount    int64  `json:"amount"`
	RequestID string `json:"requestId"`
}

func (h *EscrowHandler) Settle(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req escrowActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.RequestID == "" || req.Action == "" {
		http.Error(w, `{"error":"requestId and action are required"}`, http.StatusBadRequest)
		return
	}
	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		http.Error(w, `{"error":"invalid requestId"}`, http.StatusBadRequest)
		return
	}

	var (
		escrow  *models.EscrowAccount
		message string
	)
	switch req.Action {
	case "release":
		escrow, err = h.Engine.ReleaseEscrow(r.Context(), requestID, *actor)
		message = "Funds released to freelancer"
	case "refund":
		escrow, err = h.Engine.RefundEscrow(r.Context(), requestID, *actor)
		message = "Funds refunded to client"
	default:
		http.Error(w, `{"error":"action must be release or refund"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeServiceError(w, h.Logger, err, req.Action+" escrow")
		return
	}

	writeJSON(w, http.StatusOK, escrowActionResponse{
		Success: true,
		Message: message,
		Data: escrowActionData{
			Amount:    escrow.Amount,
			RequestID: escrow.RequestID.String(),
		},
	})
}

// Get handles GET /api/v1/escrow/{requestId}. Visible to the escrow's two
// parties and admins.
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/escrow/"), "/")
	requestID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}

	escrow, err := h.Lookup.GetByRequestID(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "escrow account not found"})
			return
		}
		writeServiceError(w, h.Logger, err, "get escrow")
		return
	}
	if actor.ID != escrow.ClientID && actor.ID != escrow.FreelancerID && !actor.Admin() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a party to this escrow"})
		return
	}
	writeJSON(w, http.StatusOK, escrow)
}

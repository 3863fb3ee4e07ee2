package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/skillx/backend/internal/middleware"
	"github.com/skillx/backend/internal/repository"
)

// Handler serves the authenticated account surface: profile, transaction
// history and notifications.
type Handler struct {
	userR         *repository.UserRepo
	transactionR  *repository.TransactionRepo
	notificationR *repository.NotificationRepo
	log           *slog.Logger
}

func NewHandler(
	userR *repository.UserRepo,
	transactionR *repository.TransactionRepo,
	notificationR *repository.NotificationRepo,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		userR:         userR,
		transactionR:  transactionR,
		notificationR: notificationR,
		log:           log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	u, err := h.userR.GetByID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("get user failed", "error", err)
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           u.ID,
		"email":        u.Email,
		"display_name": u.DisplayName,
		"role":         u.Role,
		"credits":      u.Credits,
		"created_at":   u.CreatedAt,
	})
}

// GET /api/v1/transactions
// An optional request_id query param narrows the history to one request's
// escrow entries; only entries belonging to the caller are returned.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if raw := r.URL.Query().Get("request_id"); raw != "" {
		requestID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid request_id", http.StatusBadRequest)
			return
		}
		txs, err := h.transactionR.ListByRequestID(r.Context(), requestID)
		if err != nil {
			h.log.Error("list transactions failed", "error", err)
			http.Error(w, "failed to list transactions", http.StatusInternalServerError)
			return
		}
		own := txs[:0]
		for _, t := range txs {
			if t.UserID == actor.ID {
				own = append(own, t)
			}
		}
		writeJSON(w, http.StatusOK, own)
		return
	}
	txs, err := h.transactionR.ListByUserID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, "failed to list transactions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// GET /api/v1/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ns, err := h.notificationR.ListByUserID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list notifications failed", "error", err)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// POST /api/v1/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := extractNotificationID(r)
	if !ok {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	// Scoped to the caller so one user cannot mark another's notification.
	marked, err := h.notificationR.MarkRead(r.Context(), id, actor.ID)
	if err != nil {
		h.log.Error("mark notification read failed", "error", err)
		http.Error(w, "failed to mark read", http.StatusInternalServerError)
		return
	}
	if !marked {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func extractNotificationID(r *http.Request) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/notifications/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] != "read" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

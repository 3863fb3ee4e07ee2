package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/skillx/backend/internal/middleware"
	"github.com/skillx/backend/internal/services"
)

// RequestHandler serves /api/v1/requests endpoints.
type RequestHandler struct {
	Lifecycle *services.Lifecycle
	Engine    *services.EscrowEngine
	Logger    *slog.Logger
}

type createRequestBody struct {
	ServiceID    string   `json:"service_id"`
	Requirements string   `json:"requirements"`
	TimelineDays int      `json:"timeline_days"`
	Budget       int64    `json:"budget"`
	Attachments  []string `json:"attachments"`
}

// Create handles POST /api/v1/requests.
// Auth -> schema check (via middleware) -> lifecycle controller -> 201.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// The schema middleware already read and validated the payload.
	raw := middleware.PayloadFromCtx(r.Context())
	var body createRequestBody
	if raw != nil {
		if err := json.Unmarshal(raw, &body); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	serviceID, err := uuid.Parse(body.ServiceID)
	if err != nil {
		http.Error(w, `{"error":"invalid service_id"}`, http.StatusBadRequest)
		return
	}

	req, err := h.Lifecycle.Create(r.Context(), *actor, services.CreateInput{
		ServiceID:    serviceID,
		Requirements: body.Requirements,
		TimelineDays: body.TimelineDays,
		Budget:       body.Budget,
		Attachments:  body.Attachments,
	})
	if err != nil {
		h.writeServiceError(w, err, "create request")
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// List handles GET /api/v1/requests. Clients see requests they opened,
// freelancers see requests against their services.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	reqs, err := h.Lifecycle.ListForActor(r.Context(), *actor)
	if err != nil {
		h.writeServiceError(w, err, "list requests")
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// Get handles GET /api/v1/requests/{id}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request, requestID uuid.UUID) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	req, err := h.Lifecycle.Get(r.Context(), *actor, requestID)
	if err != nil {
		h.writeServiceError(w, err, "get request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type deliverBody struct {
	DeliveryFiles []string `json:"delivery_files"`
}

// Action handles POST /api/v1/requests/{id}/{action} for the lifecycle
// actions and the pay (escrow funding) shortcut.
func (h *RequestHandler) Action(w http.ResponseWriter, r *http.Request, requestID uuid.UUID, action string) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	switch action {
	case "accept":
		h.respond(w, r, "accept")(h.Lifecycle.Accept(r.Context(), *actor, requestID))
	case "decline":
		h.respond(w, r, "decline")(h.Lifecycle.Decline(r.Context(), *actor, requestID))
	case "cancel":
		h.respond(w, r, "cancel")(h.Lifecycle.Cancel(r.Context(), *actor, requestID))
	case "revision":
		h.respond(w, r, "revision")(h.Lifecycle.RequestRevision(r.Context(), *actor, requestID))
	case "approve":
		h.respond(w, r, "approve")(h.Lifecycle.Approve(r.Context(), *actor, requestID))
	case "deliver":
		var body deliverBody
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
				return
			}
		}
		h.respond(w, r, "deliver")(h.Lifecycle.Deliver(r.Context(), *actor, requestID, body.DeliveryFiles))
	case "pay":
		escrow, err := h.Engine.FundEscrow(r.Context(), requestID, *actor)
		if err != nil {
			if errors.Is(err, services.ErrInsufficientFunds) {
				http.Error(w, `{"error":"insufficient funds"}`, http.StatusPaymentRequired)
				return
			}
			h.writeServiceError(w, err, "fund escrow")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"escrow_id":      escrow.ExternalID(),
			"request_id":     escrow.RequestID,
			"amount":         escrow.Amount,
			"status":         escrow.Status,
			"payment_status": "in_escrow",
		})
	default:
		http.Error(w, `{"error":"unknown action"}`, http.StatusNotFound)
	}
}

func (h *RequestHandler) respond(w http.ResponseWriter, _ *http.Request, op string) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			h.writeServiceError(w, err, op)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (h *RequestHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	writeServiceError(w, h.Logger, err, op)
}

// writeServiceError maps core error classes onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error, op string) {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrAlreadyProcessed),
		errors.Is(err, services.ErrInsufficientFunds):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		if log != nil {
			log.Error(op+" failed", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// ExtractRequestID parses the request UUID from the URL path.
// Supports paths like /api/v1/requests/{id} and /api/v1/requests/{id}/{action}.
func ExtractRequestID(r *http.Request) (uuid.UUID, string, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/requests/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", false
	}
	action := ""
	if len(parts) == 2 {
		action = strings.Trim(parts[1], "/")
	}
	return id, action, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

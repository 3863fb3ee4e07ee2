package catalog

import (
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

type CreateListingRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
}

type ListingResponse struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"owner_id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	Price         int64   `json:"price"`
	Status        string  `json:"status"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int64   `json:"rating_count"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// CreateListing handles POST /api/v1/services.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	s, err := h.svc.CreateListing(r.Context(), *actor, req.Name, req.Description, req.Category, req.Price)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		case errors.Is(err, services.ErrForbidden):
			http.Error(w, `{"error":"only freelancers can list services"}`, http.StatusForbidden)
		default:
			h.log.Error("create listing failed", "error", err)
			http.Error(w, `{"error":"failed to create listing"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, listingToResponse(s))
}

// ListListings handles GET /api/v1/services.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListActive(r.Context())
	if err != nil {
		h.log.Error("list services failed", "error", err)
		http.Error(w, `{"error":"failed to list services"}`, http.StatusInternalServerError)
		return
	}
	out := make([]ListingResponse, 0, len(list))
	for _, s := range list {
		out = append(out, listingToResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetListing handles GET /api/v1/services/{id}.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := extractServiceID(r)
	if !ok {
		http.Error(w, `{"error":"invalid service id"}`, http.StatusBadRequest)
		return
	}
	s, reviews, err := h.svc.GetListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"service not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get listing failed", "error", err)
		http.Error(w, `{"error":"failed to get listing"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": listingToResponse(s),
		"reviews": reviews,
	})
}

func listingToResponse(s *models.Service) ListingResponse {
	return ListingResponse{
		ID:            s.ID.String(),
		OwnerID:       s.OwnerID.String(),
		Name:          s.Name,
		Slug:          s.Slug,
		Description:   s.Description,
		Category:      s.Category,
		Price:         s.Price,
		Status:        s.Status,
		AverageRating: s.AverageRating(),
		RatingCount:   s.RatingCount,
	}
}

func extractServiceID(r *http.Request) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/services/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

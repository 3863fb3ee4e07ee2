package router

import (
	"net/http"

	"github.com/skillx/backend/internal/auth"
	"github.com/skillx/backend/internal/catalog"
	"github.com/skillx/backend/internal/dashboard"
	"github.com/skillx/backend/internal/handlers"
	"github.com/skillx/backend/internal/middleware"
	"github.com/skillx/backend/internal/services"
)

// New returns an http.Handler serving the API under /api/v1.
func New(
	authSvc auth.Service,
	authHandler *auth.Handler,
	requestHandler *handlers.RequestHandler,
	escrowHandler *handlers.EscrowHandler,
	creditsHandler *handlers.CreditsHandler,
	reviewHandler *handlers.ReviewHandler,
	catalogHandler *catalog.Handler,
	dashHandler *dashboard.Handler,
	validator *services.Validator,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.JWTAuth(authSvc)
	withPayloadCheck := middleware.CreateRequestCheck(validator)

	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	mux.Handle(base+"/requests", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			withPayloadCheck(http.HandlerFunc(requestHandler.Create)).ServeHTTP(w, r)
		case http.MethodGet:
			requestHandler.List(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle(base+"/requests/", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := handlers.ExtractRequestID(r)
		if !ok {
			http.Error(w, "invalid request id", http.StatusBadRequest)
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			requestHandler.Get(w, r, id)
		case action != "" && r.Method == http.MethodPost:
			requestHandler.Action(w, r, id, action)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Browsing listings is public; creating one requires auth.
	mux.Handle(base+"/services", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			catalogHandler.ListListings(w, r)
		case http.MethodPost:
			authed(http.HandlerFunc(catalogHandler.CreateListing)).ServeHTTP(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.Handle(base+"/services/", methodGET(catalogHandler.GetListing))

	mux.Handle(base+"/escrow", authed(methodPOST(escrowHandler.Settle)))
	mux.Handle(base+"/escrow/", authed(methodGET(escrowHandler.Get)))
	mux.Handle(base+"/add-credits", authed(methodPOST(creditsHandler.AddCredits)))
	mux.Handle(base+"/reviews", authed(methodPOST(reviewHandler.Create)))

	mux.Handle(base+"/account/me", authed(methodGET(dashHandler.GetMe)))
	mux.Handle(base+"/transactions", authed(methodGET(dashHandler.ListTransactions)))
	mux.Handle(base+"/notifications", authed(methodGET(dashHandler.ListNotifications)))
	mux.Handle(base+"/notifications/", authed(methodPOST(dashHandler.MarkNotificationRead)))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

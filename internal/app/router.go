package app

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/aliuyar1234/projectportal/internal/assistant"
	"github.com/aliuyar1234/projectportal/internal/auth"
	"github.com/aliuyar1234/projectportal/internal/config"
	"github.com/aliuyar1234/projectportal/internal/interest"
	"github.com/aliuyar1234/projectportal/internal/notify"
	"github.com/aliuyar1234/projectportal/internal/teams"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, svc *Services) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(svc.TeamStore))

	// The socket authenticates itself from ?token= or the Authorization header.
	r.Get("/ws/{user_id}", notify.ServeWS(svc.Hub, cfg.JWTSecret, originPatterns(cfg)))

	r.Group(func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.BearerMiddleware(cfg.JWTSecret))
		r.Use(auth.RequireAuth)

		limited := UserRateLimitMiddleware(cfg.RateLimitRPM)

		// Invite ledger
		r.With(limited).Post("/invite/", teams.HandleSendInvite(svc.Teams, svc.Auditor))
		r.With(limited).Put("/invite/action/", teams.HandleRespondInvite(svc.Teams, svc.Auditor))
		r.With(limited).Delete("/invite/{invite_id}", teams.HandleDeleteInvite(svc.Teams, svc.Auditor))
		r.Get("/invites/me", teams.HandleListReceivedInvites(svc.Teams))
		r.Get("/sent-invites/me", teams.HandleListSentInvites(svc.Teams))

		// Groups and locking
		r.With(limited).Post("/group/leave", teams.HandleLeaveGroup(svc.Teams, svc.Auditor))
		r.With(limited).Post("/group/lock", teams.HandleRequestLock(svc.Teams, svc.Auditor))
		r.Get("/group/lock-status", teams.HandleLockStatus(svc.Teams))
		r.Get("/group/members", teams.HandleGroupMembers(svc.Teams))
		r.Get("/group/activity", teams.HandleGroupActivity(svc.Teams, svc.Activity))

		// Users and finalized teams
		r.Get("/users", teams.HandleListUsers(svc.Teams))
		r.Get("/my-team/members", teams.HandleMyTeamMembers(svc.Teams))
		r.Get("/my-stages", teams.HandleMyStages(svc.Teams))

		// Advisor projects
		r.Route("/advisor-projects", func(r chi.Router) {
			r.Get("/advisor/interested-teams", interest.HandleAdvisorInterests(svc.Interest))
			r.Get("/team/my-interests", interest.HandleMyTeamInterests(svc.Interest))
			r.With(limited).Post("/{project_id}/interested", interest.HandleMarkInterested(svc.Interest, svc.Auditor))
			r.Get("/{project_id}/interested-teams", interest.HandleProjectInterests(svc.Interest))
		})

		// Chat assistant
		r.With(limited).Post("/chat/ask", assistant.HandleAsk(svc.Assistant))
	})

	return r
}

// originPatterns turns the configured base URL into the host pattern the
// WebSocket handshake checks Origin against. Dev accepts any origin.
func originPatterns(cfg *config.Config) []string {
	if cfg.IsDev() {
		return []string{"*"}
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleReadyz reports 503 until the store answers a ping.
func handleReadyz(store pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Store unavailable")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"store":  "ok",
		})
	}
}

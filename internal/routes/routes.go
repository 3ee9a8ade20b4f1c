package routes

import (
	"github.com/BradenHooton/pinguard/internal/auth"
	"github.com/BradenHooton/pinguard/internal/handlers"
	"github.com/BradenHooton/pinguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the bridge handlers.
type Handlers struct {
	Lock         *handlers.LockHandler
	Session      *handlers.SessionHandler
	Activity     *handlers.ActivityHandler
	Verification *handlers.VerificationHandler
	Biometric    *handlers.BiometricHandler
	Events       *handlers.EventsHandler
	Health       *handlers.HealthHandler
}

// RegisterRoutes registers all bridge routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.BridgeTokenManager,
	rateLimit middleware.RateLimitConfig,
) {
	credentialLimit := middleware.RateLimitByClient(middleware.CredentialRateLimit())

	// Public routes - no bridge token required
	router.Get("/health", h.Health.Health)

	// Protected routes - bridge token required
	router.Group(func(r chi.Router) {
		r.Use(auth.BridgeAuth(tokenManager))
		r.Use(middleware.RateLimitByClient(rateLimit))

		r.Route("/lock", func(r chi.Router) {
			r.Get("/status", h.Lock.GetStatus)
			r.Post("/lock", h.Lock.Lock)
			r.Post("/unlock", h.Lock.Unlock)
			r.Put("/biometric", h.Lock.SetBiometricEnabled)
			r.Post("/biometric", h.Lock.AuthenticateBiometric)
			r.Put("/timeout", h.Lock.SetInactivityTimeout)

			// Credential endpoints get a tighter limit on top of the lockout policy
			r.With(credentialLimit).Put("/pin", h.Lock.SetupPin)
			r.With(credentialLimit).Delete("/pin", h.Lock.RemovePin)
			r.With(credentialLimit).Post("/verify", h.Lock.VerifyPin)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/status", h.Session.GetStatus)
			r.Put("/tokens", h.Session.SetTokens)
			r.Post("/start", h.Session.Start)
			r.Post("/extend", h.Session.Extend)
			r.Post("/logout", h.Session.Logout)
			r.Post("/concurrent", h.Session.ReportConcurrent)
		})

		r.Route("/biometric", func(r chi.Router) {
			r.Put("/capability", h.Biometric.SetCapability)
			r.Get("/prompt", h.Biometric.GetPrompt)
			r.Post("/result", h.Biometric.SubmitResult)
		})

		r.Post("/activity", h.Activity.RecordActivity)
		r.Post("/lifecycle", h.Activity.Transition)
		r.With(credentialLimit).Post("/verification", h.Verification.Verify)
		r.Get("/events", h.Events.Stream)
	})
}

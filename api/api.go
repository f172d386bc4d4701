package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/mwalcott/keystep/identity"
	"github.com/mwalcott/keystep/mfa"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	ctrl          *mfa.Controller
	idp           identity.Provider
	marker        *markerIssuer
	setupLimiter  *attemptLimiter
	verifyLimiter *attemptLimiter
	sendLimiter   *attemptLimiter
	audit         *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// New creates a new API instance. cookieSecret signs the MFA session marker.
func New(ctrl *mfa.Controller, idp identity.Provider, cookieSecret []byte, opts ...Option) *API {
	a := &API{
		ctrl:          ctrl,
		idp:           idp,
		marker:        newMarkerIssuer(cookieSecret),
		setupLimiter:  newAttemptLimiter(setupMaxAttempts, setupWindow),
		verifyLimiter: newAttemptLimiter(verifyMaxAttempts, verifyWindow),
		sendLimiter:   newAttemptLimiter(sendMaxAttempts, sendWindow),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	// Status and logout are tolerant of missing identity by design.
	r.Get("/mfa/status", a.handleStatus)
	r.Post("/mfa/logout", a.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(a.RequireIdentity)
		r.Post("/mfa/setup", a.handleSetupStart)
		r.Post("/mfa/setup/verify", a.handleSetupVerify)
		r.Post("/mfa/verify", a.handleVerify)
		r.Post("/mfa/challenge/send", a.handleSendChallenge)
		r.Post("/mfa/disable", a.handleDisable)
		r.Get("/mfa/devices", a.handleListDevices)
		r.Post("/mfa/devices/revoke", a.handleRevokeDevice)
	})

	return r
}

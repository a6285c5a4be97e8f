// Package api exposes the rule engine over HTTP.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/store"
	"github.com/TimurManjosov/cclengine/internal/telemetry"
	"github.com/TimurManjosov/cclengine/internal/text"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Engine *ccl.Engine
	// Store receives configuration writes. Nil disables them.
	Store store.Store
	// AdminAPIKey guards configuration writes. Empty disables them.
	AdminAPIKey      string
	FallbackLanguage text.Language
	Logger           zerolog.Logger
	// Timeout bounds every request except the event stream.
	Timeout time.Duration
}

type Server struct {
	engine   *ccl.Engine
	store    store.Store
	adminKey string
	fallback text.Language
	log      zerolog.Logger
	timeout  time.Duration
	tracer   trace.Tracer
	now      func() time.Time
}

func NewServer(opts Options) *Server {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		engine:   opts.Engine,
		store:    opts.Store,
		adminKey: opts.AdminAPIKey,
		fallback: opts.FallbackLanguage,
		log:      opts.Logger,
		timeout:  timeout,
		tracer:   otel.Tracer("github.com/TimurManjosov/cclengine/internal/api"),
		now:      time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// The stream stays open, so it sits outside the timeout group.
	r.Get("/v1/configurations/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/v1/configurations", s.handleListConfigurations)
		r.Get("/v1/configurations/{country}/{version}", s.handleGetConfiguration)
		if s.store != nil && s.adminKey != "" {
			r.Put("/v1/configurations", s.authAdmin(s.handleUpsertConfiguration))
			r.Delete("/v1/configurations/{country}/{version}", s.authAdmin(s.handleDeleteConfiguration))
		}

		r.Post("/v1/functions/{name}/evaluate", s.handleEvaluateFunction)
		r.Post("/v1/wallet-info", s.handleWalletInfo)
		r.Post("/v1/format-text", s.handleFormatText)
	})

	return r
}

func (s *Server) authAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if got == "" {
			UnauthorizedError(w, r, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminKey)) != 1 {
			ForbiddenError(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	}
}

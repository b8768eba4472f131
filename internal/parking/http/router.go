package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/aussiebroadwan/parking/internal/parking/service"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/aussiebroadwan/parking/pkg/jwtx"
	"github.com/aussiebroadwan/parking/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	Broker   BrokerStatus        // Optional: nil when no MQTT broker is configured
	Gatherer prometheus.Gatherer // Optional: /metrics is only served when set

	Coordinator *service.AccessCoordinator
	Admin       *service.AdminService

	// Limits must be set before ApplyRoutes.
	Limits httpx.RateLimits
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Limits:       httpx.DefaultRateLimits(),
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerNodes()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerNodes() {
	h := &NodesHandler{Coordinator: r.Coordinator, Admin: r.Admin}

	// POST /api/nodes/{id} - badge scan, strict limit per IP and node to slow
	// down token guessing
	r.Mux.Handle("POST /api/nodes/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleAuthenticate),
			httpx.RateLimitByIPAndPathValue(r.Limits.Strict, "id"),
		),
	)

	// PATCH /api/nodes/{id} - nodes send their token in the body, UI callers a
	// bearer token
	r.Mux.Handle("PATCH /api/nodes/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleUpdate),
			httpx.RateLimitByIPAndPathValue(r.Limits.Moderate, "id"),
			httpx.OptionalAuthnMiddleware(r.verifier),
		),
	)

	r.Mux.Handle("GET /api/nodes",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("GET /api/nodes/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(r.Limits.Lenient),
		),
	)

	// Fleet management - admin only
	r.Mux.Handle("POST /api/nodes", r.admin(h.HandleCreate))
	r.Mux.Handle("DELETE /api/nodes/{id}", r.admin(h.HandleDelete))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Admin: r.Admin}

	r.Mux.Handle("GET /api/users", r.admin(h.HandleList))
	r.Mux.Handle("GET /api/users/{id}", r.admin(h.HandleGet))
	r.Mux.Handle("POST /api/users", r.admin(h.HandleCreate))
	r.Mux.Handle("PATCH /api/users/{id}", r.admin(h.HandleUpdate))
	r.Mux.Handle("DELETE /api/users/{id}", r.admin(h.HandleDelete))
	r.Mux.Handle("POST /api/users/{id}/unlock", r.admin(h.HandleUnlock))
}

// admin wraps an admin-only handler: bearer token, is_admin claim, moderate
// per-user limit.
func (r *Router) admin(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAdmin(),
		httpx.RateLimitByUser(r.Limits.Moderate),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Broker),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)

	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", metrics.Handler(r.Gatherer))
	}
}

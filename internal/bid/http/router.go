package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/blender-id/bid/internal/bid/obs"
	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/internal/bid/store"
	"github.com/blender-id/bid/pkg/httpx"
	"github.com/blender-id/bid/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store         store.Store
	TokenService  *service.TokenService
	UserService   *service.UserService
	BadgerService *service.BadgerService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		obs.Instrument,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAddon()
	r.registerBadger()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authenticator adapts the token service to the httpx bearer middleware.
// Interactive API calls authenticate with primary tokens only; a subclient
// token never grants access here because validation pins subclient to "".
func (r *Router) authenticator() httpx.Authenticator {
	return &tokenAuthenticator{tokens: r.TokenService}
}

func (r *Router) registerAddon() {
	identifyHandler := &IdentifyHandler{TokenService: r.TokenService}
	validateHandler := &ValidateTokenHandler{TokenService: r.TokenService}
	deleteHandler := &DeleteTokenHandler{TokenService: r.TokenService}
	subclientHandler := &SubclientTokenHandler{
		TokenService: r.TokenService,
		UserService:  r.UserService,
	}

	// POST /identify - strict rate limit (password authentication attempts)
	// Note: Rate limited by IP + email form field to prevent brute force
	r.Mux.Handle("POST /v1/addon/identify",
		httpx.Chain(identifyHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "email"),
		),
	)

	// POST /validate_token - moderate rate limit (called on every add-on sync)
	r.Mux.Handle("POST /v1/addon/validate_token",
		httpx.Chain(validateHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /delete_token - moderate rate limit
	r.Mux.Handle("POST /v1/addon/delete_token",
		httpx.Chain(deleteHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /subclient_token - requires a primary bearer token
	r.Mux.Handle("POST /v1/addon/subclient_token",
		httpx.Chain(subclientHandler,
			httpx.AuthnMiddleware(r.authenticator()),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerBadger() {
	h := &BadgerHandler{
		BadgerService: r.BadgerService,
		UserService:   r.UserService,
	}

	// Both verbs share the chain: bearer auth, then the badger scope gate.
	// Scope is enforced before the engine ever runs, so a caller without the
	// scope gets 403 even for a redundant no-op action.
	secure := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.authenticator()),
			httpx.RequireAnyScope("badger"),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/badger/grant/{badge}/{email}", secure(http.HandlerFunc(h.HandleGrant)))
	r.Mux.Handle("POST /v1/badger/revoke/{badge}/{email}", secure(http.HandlerFunc(h.HandleRevoke)))
}

func (r *Router) registerUsers() {
	h := &UserInfoHandler{UserService: r.UserService}

	// Authenticated endpoint - lenient rate limit by user
	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.authenticator()),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", obs.Handler())
}

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vitadrop/vitaauth"
	"github.com/vitadrop/vitaauth/middleware"
)

// Auth is the engine surface the handlers use. *vitaauth.Engine satisfies it.
type Auth interface {
	middleware.Authenticator
	Login(ctx context.Context, email, password string) (*vitaauth.SessionResult, error)
	Register(ctx context.Context, in vitaauth.RegisterInput) (*vitaauth.SessionResult, error)
	Refresh(ctx context.Context, refreshToken string) (*vitaauth.RefreshResult, error)
	Logout(ctx context.Context, userID string) error
	Profile(ctx context.Context, p vitaauth.Principal) (vitaauth.User, error)
	GetUser(ctx context.Context, userID string) (vitaauth.User, error)
	UpdateProfile(ctx context.Context, actor vitaauth.Principal, targetID string, patch vitaauth.ProfilePatch) (vitaauth.User, error)
	ListUsers(ctx context.Context, actor vitaauth.Principal) ([]vitaauth.User, error)
	SessionInfo(ctx context.Context, p vitaauth.Principal) (*vitaauth.SessionInfo, error)
	Config() vitaauth.Config
}

// Options configures [NewRouter].
type Options struct {
	// Prefix is where the user routes are mounted, e.g. /api/users.
	Prefix string
	// AllowedOrigins enables credentialed CORS for these origins.
	AllowedOrigins []string
	Logger         *slog.Logger
	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
}

// NewRouter builds the HTTP surface around auth.
func NewRouter(auth Auth, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		auth:    auth,
		cookies: newCookieJar(auth.Config().Session, auth.Config().JWT),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(clientContext)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{middleware.HeaderAuthError},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	routes := func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/register", h.register)
		r.Post("/refreshToken", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(auth))

			r.Post("/logout", h.logout)
			r.Get("/profile", h.profile)
			r.Get("/profile/{id}", h.userByID)
			r.Put("/profile/{id}", h.updateProfile)
			r.Get("/session", h.session)
			r.With(middleware.RequireRole(vitaauth.RoleAdmin)).Get("/all", h.listUsers)
		})
	}
	if opts.Prefix == "" || opts.Prefix == "/" {
		routes(r)
	} else {
		r.Route(opts.Prefix, routes)
	}

	return r
}

// clientContext hands the caller's IP and request id to the engine for
// throttling and audit.
func clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := vitaauth.WithClientIP(r.Context(), clientIP(r.RemoteAddr))
		if id := chimiddleware.GetReqID(ctx); id != "" {
			ctx = vitaauth.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package httpapi

import (
	"net/http"
	"time"

	"aigate/internal/accounting"
	"aigate/internal/admin"
	"aigate/internal/logging"
	"aigate/internal/middleware"
	"aigate/internal/providers"
	"aigate/internal/ratelimit"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Keys      storage.KeyStore
	Engine    *accounting.Engine
	Admin     *admin.Service
	Auth      *admin.Authenticator
	RateLimit ratelimit.Limiter
	Provider  providers.Provider
	Archive   logging.Sink

	// Per-operation admission costs in credits.
	TextCost  int64
	ImageCost int64

	Logger *utils.Logger
}

// NewRouter creates an HTTP router with all routes wired up.
func NewRouter(deps *Dependencies) *http.ServeMux {
	if deps.Logger == nil {
		deps.Logger = utils.NewLogger("httpapi")
	}
	if deps.Archive == nil {
		deps.Archive = logging.NewNoopSink()
	}
	if deps.RateLimit == nil {
		deps.RateLimit = ratelimit.NewNoopLimiter()
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps)
	return mux
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Public endpoints
	mux.HandleFunc("/", deps.handleRoot)
	mux.HandleFunc("/api_key", deps.handleAPIKeyStatus)
	mux.HandleFunc("/health", handleHealth)

	// Metered endpoints - api_key resolved by middleware, admission
	// decided in the handler
	apiKeyMiddleware := middleware.APIKeyMiddleware(deps.Keys)
	mux.Handle("/text", apiKeyMiddleware(http.HandlerFunc(deps.handleText)))
	mux.Handle("/image", apiKeyMiddleware(http.HandlerFunc(deps.handleImage)))

	// Admin endpoints - credential gate in middleware
	adminAuth := middleware.AdminAuthMiddleware(deps.Auth)
	mux.Handle("/admin/generateapi", adminAuth(http.HandlerFunc(deps.handleAdminGenerateKey)))
	mux.Handle("/admin/listapi", adminAuth(http.HandlerFunc(deps.handleAdminListKeys)))
	mux.Handle("/admin/increaseapilimit", adminAuth(http.HandlerFunc(deps.handleAdminIncreaseLimit)))
	mux.Handle("/admin/addcredits", adminAuth(http.HandlerFunc(deps.handleAdminAddCredits)))
	mux.Handle("/admin/resetapilimit", adminAuth(http.HandlerFunc(deps.handleAdminResetLimit)))
	mux.Handle("/admin/deleteapi", adminAuth(http.HandlerFunc(deps.handleAdminDeleteKey)))
	mux.Handle("/admin/stats", adminAuth(http.HandlerFunc(deps.handleAdminStats)))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

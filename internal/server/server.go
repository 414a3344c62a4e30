// Package server exposes the entitlement service over HTTP: the App
// Store notification webhook, the device-facing API, and the realtime
// event socket.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
	"github.com/dukerupert/solarc/internal/entitlement"
	"github.com/dukerupert/solarc/internal/middleware"
	"github.com/dukerupert/solarc/internal/push"
	"github.com/dukerupert/solarc/internal/store"
	ws "github.com/dukerupert/solarc/internal/websocket"
)

// webhookRateLimit caps notification deliveries per source address per
// minute; the App Store redelivers on 429 like any other failure.
const webhookRateLimit = 60

type Server struct {
	flow          *entitlement.Flow
	entitlements  *entitlement.Store
	reconciler    *entitlement.Reconciler
	commerce      entitlement.Commerce
	bridge        *appstore.Bridge
	feed          *appstore.Feed
	notifications *store.NotificationStore
	pushStore     *store.PushStore
	pushService   *push.Service
	hub           *ws.Hub
	rateLimiter   *middleware.RateLimiter
	apiToken      string
	logger        *slog.Logger
}

type Config struct {
	APIToken string
}

func New(
	flow *entitlement.Flow,
	entitlements *entitlement.Store,
	reconciler *entitlement.Reconciler,
	commerce entitlement.Commerce,
	bridge *appstore.Bridge,
	feed *appstore.Feed,
	notifications *store.NotificationStore,
	pushStore *store.PushStore,
	pushService *push.Service,
	hub *ws.Hub,
	cfg Config,
	logger *slog.Logger,
) *Server {
	return &Server{
		flow:          flow,
		entitlements:  entitlements,
		reconciler:    reconciler,
		commerce:      commerce,
		bridge:        bridge,
		feed:          feed,
		notifications: notifications,
		pushStore:     pushStore,
		pushService:   pushService,
		hub:           hub,
		rateLimiter:   middleware.NewRateLimiter(webhookRateLimit, time.Minute),
		apiToken:      cfg.APIToken,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// App Store notifications (public, rate-limited)
	rateLimited := s.rateLimiter.Middleware(middleware.ClientIP)
	mux.Handle("POST /webhooks/appstore", rateLimited(http.HandlerFunc(s.handleNotification)))

	// Device API
	authMw := middleware.RequireToken(s.apiToken)
	mux.Handle("GET /api/products", authMw(http.HandlerFunc(s.handleProducts)))
	mux.Handle("POST /api/products/refresh", authMw(http.HandlerFunc(s.handleProductsRefresh)))
	mux.Handle("GET /api/entitlements", authMw(http.HandlerFunc(s.handleEntitlements)))
	mux.Handle("GET /api/entitlements/{productID}", authMw(http.HandlerFunc(s.handlePurchased)))
	mux.Handle("GET /api/plan", authMw(http.HandlerFunc(s.handlePlan)))
	mux.Handle("POST /api/purchase", authMw(http.HandlerFunc(s.handlePurchase)))
	mux.Handle("POST /api/purchase/result", authMw(http.HandlerFunc(s.handlePurchaseResult)))

	// Push subscriptions
	mux.Handle("GET /api/push/key", authMw(http.HandlerFunc(s.handlePushKey)))
	mux.Handle("POST /api/push/subscribe", authMw(http.HandlerFunc(s.handlePushSubscribe)))
	mux.Handle("DELETE /api/push/subscribe", authMw(http.HandlerFunc(s.handlePushUnsubscribe)))

	// Realtime entitlement events
	mux.Handle("GET /ws", ws.HandleWebSocket(s.hub, s.logger))

	return middleware.RequestLogger(s.logger)(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

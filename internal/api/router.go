package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/config"
	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/handlers"
	"github.com/vikasavnish/savepad/internal/middleware"
	"github.com/vikasavnish/savepad/internal/notify"
	"github.com/vikasavnish/savepad/internal/services"
	"github.com/vikasavnish/savepad/internal/websocket"
)

// Dependencies are the process-wide resources the router wires into services.
type Dependencies struct {
	DB       *gorm.DB
	Codes    services.CodeStore
	Hub      *websocket.Hub
	Provider billing.Provider
	Notifier notify.Notifier
}

// SetupRouter configures all routes and returns the router
func SetupRouter(deps Dependencies, cfg *config.Config) *mux.Router {
	// Create a new router
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Logging)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.ErrorResponse(w, r, domain.NotFound("router", "Rota não encontrada."))
	})

	router.HandleFunc("/", RootHandler).Methods("GET")
	router.HandleFunc("/api/health", HealthHandler(deps.DB)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if cfg.Server.Env != "prod" {
		router.HandleFunc("/api/routes", PrintRoutesHandler(router)).Methods("GET")
	}

	// WebSocket route
	var broadcaster services.Broadcaster
	if deps.Hub != nil {
		router.HandleFunc("/ws", deps.Hub.HandleWebSocket)
		broadcaster = deps.Hub
	}

	// Create services
	planService := services.NewPlanService(deps.DB, deps.Provider, broadcaster)
	familyService := services.NewFamilyService(deps.DB, deps.Notifier)
	authService := services.NewAuthService(deps.DB, cfg.JWT.SecretKey(), cfg.JWT.TTL)
	userService := services.NewUserService(deps.DB)
	checkoutService := services.NewCheckoutService(deps.DB, planService, deps.Provider, cfg.Server.BaseURL)
	webhookService := services.NewWebhookService(deps.DB, planService, deps.Provider, deps.Notifier)
	verificationService := services.NewVerificationService(deps.DB, deps.Codes, familyService, cfg.Verification.CodeTTL)

	// Create handlers using services
	authHandler := handlers.NewAuthHandler(authService)
	familyHandler := handlers.NewFamilyHandler(familyService)
	planHandler := handlers.NewPlanHandler(planService, checkoutService)
	webhookHandler := handlers.NewWebhookHandler(webhookService, cfg.MercadoPago.WebhookSecret)
	userHandler := handlers.NewUserHandler(userService)
	whatsappHandler := handlers.NewWhatsappHandler(verificationService, cfg.Bot.Token)

	// Public endpoints (no authentication required)
	authHandler.RegisterRoutes(router)
	familyHandler.RegisterRoutes(router)
	familyHandler.RegisterLegacyRoutes(router)
	planHandler.RegisterRoutes(router)
	webhookHandler.RegisterRoutes(router)
	userHandler.RegisterRoutes(router)
	whatsappHandler.RegisterBotRoutes(router)

	// Create the API router for authenticated endpoints
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.AuthMiddleware(cfg.JWT.SecretKey()))
	whatsappHandler.RegisterRoutes(apiRouter)

	return router
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/amqp"
	"github.com/dafibh/envelope/envelope-backend/internal/cache"
	"github.com/dafibh/envelope/envelope-backend/internal/config"
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/handler"
	"github.com/dafibh/envelope/envelope-backend/internal/middleware"
	"github.com/dafibh/envelope/envelope-backend/internal/repository"
	"github.com/dafibh/envelope/envelope-backend/internal/repository/document"
	"github.com/dafibh/envelope/envelope-backend/internal/service"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Drafts are never durable, but outlive the document cache so an open editing session survives
const draftTTL = 24 * time.Hour

// @title Envelope API
// @version 1.0
// @description Monthly ledger recalculation for envelope budgets.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Auth0 access token, prefixed with "Bearer "
func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.DocumentStore).Msg("Failed to open document store")
	}
	defer closeStore()

	// Local cache
	docCache := cache.NewDocumentCache(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	drafts := cache.NewDraftStore(cfg.Cache.MaxEntries, draftTTL)
	cacheManager := cache.NewManager(log.Logger)
	cacheManager.Register(docCache)
	cacheManager.Register(drafts)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	// Initialize repositories
	budgetRepo := document.NewBudgetRepository(store, docCache)
	monthRepo := document.NewMonthRepository(store, docCache)

	// Recalculation queue, optional
	var (
		queue      domain.RecalcQueue
		amqpClient *amqp.Client
	)
	if cfg.AMQP.Enabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
		}
		defer amqpClient.Close()
		queue = amqpClient
		log.Info().Str("queue", cfg.AMQP.Queue).Msg("Recalculation queue enabled")
	}

	// Initialize services
	tracker := service.NewRecalcTracker(budgetRepo)
	locker := service.NewBudgetLocker()
	cascadeService := service.NewCascadeService(budgetRepo, monthRepo, tracker, service.NewCalculationService(), locker, log.Logger)
	monthService := service.NewMonthService(budgetRepo, monthRepo, tracker, cascadeService, locker, log.Logger)
	transactionService := service.NewTransactionService(budgetRepo, monthRepo, tracker, locker, queue, log.Logger)
	allocationService := service.NewAllocationService(budgetRepo, monthRepo, drafts, tracker, cascadeService, locker, log.Logger)
	recalcWorker := service.NewRecalcWorker(cascadeService, budgetRepo, log.Logger, service.RecalcWorkerConfig{
		Interval:    cfg.Recalc.SweepInterval,
		Concurrency: cfg.Recalc.WorkerConcurrency,
	})

	// Real-time updates
	hub := websocket.NewHub()
	cascadeService.SetEventPublisher(hub)
	monthService.SetEventPublisher(hub)
	transactionService.SetEventPublisher(hub)
	allocationService.SetEventPublisher(hub)
	recalcWorker.SetEventPublisher(hub)
	if amqpClient != nil {
		// jobs running in recalc-worker report back through the broker
		relay := service.NewRecalcRelay(recalcWorker, hub, log.Logger)
		go func() {
			if err := amqpClient.ConsumeBudgetEvents(ctx, relay.Relay); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Budget event consumer stopped")
			}
		}()
	}

	// Initialize auth, shared by the REST middleware and websocket upgrades
	jwtValidator, err := middleware.NewAuth0Validator(cfg.Auth0Domain, cfg.Auth0Audience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token validator")
	}
	authMiddleware := middleware.NewAuthMiddlewareWithValidator(jwtValidator)
	wsValidator := websocket.NewSubjectValidator(jwtValidator)
	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.Recalc.RatePerMinute, middleware.DefaultBurstSize)
	defer rateLimiter.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":        "ok",
			"cachedEntries": docCache.Size(),
			"wsClients":     hub.TotalClientCount(),
			"recalcSweeps":  recalcWorker.IsRunning(),
		})
	})

	// Register API routes
	handler.RegisterRoutes(e, authMiddleware, budgetRepo, rateLimiter, handler.Handlers{
		Month:       handler.NewMonthHandler(monthService),
		Transaction: handler.NewTransactionHandler(transactionService),
		Allocation:  handler.NewAllocationHandler(allocationService),
		Recalc:      handler.NewRecalcHandler(cascadeService, recalcWorker, queue),
		WebSocket:   handler.NewWebSocketHandler(hub, wsValidator, budgetRepo, cfg.CORSOrigins),
	})

	// Background sweep of budgets with stale months
	recalcWorker.Start(ctx)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	recalcWorker.Stop()

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}

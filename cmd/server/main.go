package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"messenger/internal/config"
	"messenger/internal/gateway"
	"messenger/internal/handler"
	"messenger/internal/middleware"
	"messenger/internal/repository"
	"messenger/internal/service"
	"messenger/internal/session"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path to .env file")
	migrate := pflag.Bool("migrate", false, "apply embedded migrations before start")
	pflag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.NewWithFormat(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Подключение к PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Invalid database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.Database.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	if *migrate {
		if err := repository.Migrate(ctx, dbPool, appLogger); err != nil {
			appLogger.Fatal("Failed to apply migrations", "error", err)
		}
	}

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	repos := repository.NewRepositories(dbPool, rdb, cfg.Queue, appLogger)

	// Брокер: relay между инстансами или локальная доставка
	hub := gateway.NewHub(appLogger)
	var broker gateway.Broker = gateway.NewLocalBroker(hub)
	if cfg.Relay.Enabled {
		relay := gateway.NewRedisBroker(cfg.Relay, hub, appLogger)
		defer relay.Close()
		broker = relay
		appLogger.Info("Using external relay", "addr", cfg.Relay.Addr())
	}

	services := service.NewServices(repos, broker, cfg, appLogger)

	registry := session.NewRegistry()
	server := gateway.NewServer(registry, hub, services, gateway.Options{
		FramesPerSecond: cfg.RateLimit.FramesPerSecond,
	}, appLogger)

	handlers := handler.NewHandlers(
		services,
		gateway.NewWebSocketTransport(server, services.Gatekeeper, cfg.Server, appLogger),
		gateway.NewStreamTransport(server, services.Gatekeeper, appLogger),
		server,
		appLogger,
	)

	authMiddleware := middleware.NewAuthMiddleware(services.Gatekeeper, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.RateLimit.RequestsPerMinute, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	// Фоновые задачи: relay и завершение звонков без heartbeat
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := broker.Run(ctx); err != nil {
			appLogger.Fatal("Relay stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		service.NewCallReaper(services.Call, cfg.Call.ReaperInterval, appLogger).Run(ctx)
	}()

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout не задаем: он обрывал бы долгие SSE-потоки
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Закрытые сессии завершают websocket и SSE соединения
	server.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	cancel()
	wg.Wait()

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)

	// Realtime: токен проверяется при апгрейде или в CONNECT
	router.GET("/ws", handlers.WebSocket.Handle)
	router.GET("/ws/stream", handlers.Stream.Open)
	router.POST("/ws/stream/:sid", handlers.Stream.Send)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth(), rateLimitMiddleware.Limit())
	{
		chats := v1.Group("/chats")
		{
			chats.GET("", handlers.Chat.List)
			chats.GET("/:id/members", handlers.Chat.Members)
			chats.GET("/:id/messages", handlers.Chat.GetMessages)
			chats.POST("/:id/messages", handlers.Chat.SendMessage)
			chats.POST("/:id/read", handlers.Chat.MarkRead)
			chats.GET("/:id/replay", handlers.Chat.Replay)
			chats.POST("/:id/calls", handlers.Call.Start)
			chats.GET("/:id/calls/active", handlers.Call.Active)
		}

		messages := v1.Group("/messages")
		{
			messages.GET("/unread-count", handlers.Message.UnreadCount)
			messages.DELETE("/:id", handlers.Message.Delete)
		}

		calls := v1.Group("/calls")
		{
			calls.GET("/ice-servers", handlers.Call.ICEServers)
			calls.POST("/:id/end", handlers.Call.End)
			calls.POST("/:id/heartbeat", handlers.Call.Heartbeat)
			calls.POST("/:id/media-token", handlers.Media.GetToken)
		}
	}

	return router
}

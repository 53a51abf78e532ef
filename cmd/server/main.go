package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatapp/infrastructure/cache"
	"chatapp/infrastructure/db"
	"chatapp/infrastructure/ws"
	"chatapp/internal/config"
	httpHandler "chatapp/internal/delivery/http"
	"chatapp/internal/delivery/websocket"
	"chatapp/internal/metrics"
	"chatapp/internal/repository"
	"chatapp/internal/store"
	"chatapp/internal/usecase"
	"chatapp/pkg/jwt"
	"chatapp/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, closeGateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGateway()
	log.Info("persistence_ready", zap.String("backend", cfg.Backend))

	messageStore := store.NewMessageStore(gateway,
		store.WithLogger(log.Named("store")),
		store.WithWriteTimeout(cfg.WriteTimeout),
		store.WithMetrics(metrics.NewStoreMetrics(prometheus.DefaultRegisterer)),
	)
	if err := messageStore.Load(ctx); err != nil {
		return err
	}

	var hub ws.IHub
	if cfg.RedisAddr != "" {
		log.Info("ws_hub_redis", zap.String("addr", cfg.RedisAddr), zap.String("server_id", cfg.ServerID))
		redisHub := ws.NewRedisHub(cfg.RedisAddr, cfg.ServerID)
		defer redisHub.Close()
		hub = redisHub
	} else {
		log.Info("ws_hub_memory")
		hub = ws.NewHub()
	}
	go hub.Run()

	if cfg.UsingDefaultSecret() {
		log.Warn("jwt_default_secret", zap.String("hint", "set JWT_SECRET in production"))
	}
	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	counters := cache.NewMemCache(time.Minute)
	defer counters.Close()

	messageUc := usecase.NewMessageUsecase(messageStore, hub, log.Named("usecase"))

	rateLimiter := httpHandler.NewRateLimiter(counters, cfg.PostRateLimit, cfg.PostRateWindow, log.Named("ratelimit"))
	messageH := httpHandler.NewMessageHandler(messageUc, hub, log.Named("http"))
	websocketH := websocket.NewWebsocketHandler(hub, jwtManager, rateLimiter, messageUc, log.Named("ws"))
	authMiddleware := httpHandler.NewAuthMiddleware(jwtManager)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(httpHandler.RequestLogger(log.Named("access")))
	router.Use(middleware.Recoverer)
	router.Use(httpHandler.CORS(cfg.AllowedOrigin))

	httpHandler.MapHttpRoutes(router, messageH,
		http.HandlerFunc(websocketH.HandleWebSocket),
		promhttp.Handler(),
		authMiddleware,
		rateLimiter,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listening", zap.String("addr", srv.Addr), zap.Int("messages", messageStore.Count()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("http_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http_shutdown_failed", zap.Error(err))
		}
	}
	return nil
}

// openGateway connects the configured backend. The returned func releases it.
func openGateway(ctx context.Context, cfg *config.Config) (repository.MessageGateway, func(), error) {
	switch cfg.Backend {
	case config.BackendMongo:
		mongoDb, err := db.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewMessageRepository(*mongoDb.DB), func() {
			mongoDb.Close(context.Background())
		}, nil

	case config.BackendSQLite:
		sqliteDb, err := db.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteMessageRepository(sqliteDb.DB), func() {
			sqliteDb.Close()
		}, nil

	case config.BackendPebble:
		pebbleDb, err := db.NewPebbleStore(cfg.PebblePath)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPebbleMessageRepository(pebbleDb.DB), func() {
			pebbleDb.Close()
		}, nil

	default:
		return repository.NewMemoryGateway(), func() {}, nil
	}
}

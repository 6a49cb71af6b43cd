package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"ripple/internal/auth"
	"ripple/internal/catalog"
	"ripple/internal/config"
	"ripple/internal/handler"
	"ripple/internal/handler/sse"
	"ripple/internal/middleware"
	"ripple/internal/repository/postgres"
	"ripple/internal/service/attachments"
	chatsvc "ripple/internal/service/chat"
	historysvc "ripple/internal/service/history"
	"ripple/internal/service/providers"
	"ripple/internal/service/session"
	"ripple/internal/storage"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	jwtVerifier, err := auth.NewJWKSVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	chatRepo := postgres.NewChatRepository(repoConfig)
	messageRepo := postgres.NewMessageRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	modelCatalog, err := catalog.Load()
	if err != nil {
		log.Fatalf("Failed to load model catalog: %v", err)
	}
	logger.Info("model catalog loaded", "models", len(modelCatalog.List()))

	providerFactory := providers.NewProviderFactory(cfg)
	router := providers.NewRouter(modelCatalog, providerFactory, logger)

	// Object storage: GCS when configured, in-memory otherwise (dev).
	var store storage.ObjectStore
	if cfg.GCSBucket != "" {
		gcsStore, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile, logger)
		if err != nil {
			log.Fatalf("Failed to create GCS store: %v", err)
		}
		store = gcsStore
		logger.Info("object storage ready", "backend", "gcs", "bucket", cfg.GCSBucket)
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("object storage is in-memory; attachments do not survive restarts")
	}
	defer store.Close()

	resolver := attachments.NewResolver(store, logger)

	registry := session.NewRegistry(time.Minute, cfg.SessionRetention, logger)
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go registry.StartCleanup(cleanupCtx)

	guard := &session.Guard{
		ChatRepo:   chatRepo,
		Registry:   registry,
		LeaseGrace: cfg.StreamLeaseGrace,
		Logger:     logger,
	}
	launcher := &session.Launcher{
		Router:      router,
		MessageRepo: messageRepo,
		ChatRepo:    chatRepo,
		Registry:    registry,
		IdleTimeout: cfg.StreamIdleTimeout,
		Logger:      logger,
	}

	chatService := chatsvc.NewService(chatRepo, messageRepo, txManager, &chatsvc.StreamingDeps{
		Resolver:     resolver,
		Launcher:     launcher,
		Registry:     registry,
		Guard:        guard,
		LeaseGrace:   cfg.StreamLeaseGrace,
		DefaultModel: cfg.DefaultModel,
		Logger:       logger,
	}, logger)

	historyService := historysvc.NewService(
		chatRepo,
		messageRepo,
		txManager,
		guard,
		launcher,
		cfg.StreamLeaseGrace,
		cfg.DefaultModel,
		logger,
	)

	sseCfg := sse.DefaultConfig()
	chatHandler := handler.NewChatHandler(chatService, logger)
	streamHandler := handler.NewStreamHandler(chatService, *sseCfg, logger)
	historyHandler := handler.NewHistoryHandler(historyService, *sseCfg, logger)
	modelsHandler := handler.NewModelsHandler(modelCatalog)
	healthHandler := handler.NewHealthHandler(pool)

	logger.Info("services initialized")

	// Go 1.22+ method-and-pattern routing.
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Check)

	mux.HandleFunc("GET /api/models", modelsHandler.ListModels)

	mux.HandleFunc("POST /api/chats", chatHandler.CreateChat)
	mux.HandleFunc("GET /api/chats", chatHandler.ListChats)
	mux.HandleFunc("GET /api/chats/{id}", chatHandler.GetChat)
	mux.HandleFunc("PATCH /api/chats/{id}", chatHandler.UpdateChat)
	mux.HandleFunc("DELETE /api/chats/{id}", chatHandler.DeleteChat)
	mux.HandleFunc("GET /api/chats/{id}/messages", chatHandler.GetMessages)

	// Streaming routes
	mux.HandleFunc("POST /api/chats/{id}/messages", streamHandler.SubmitMessage) // SSE response
	mux.HandleFunc("GET /api/chats/{id}/stream", streamHandler.Resume)           // SSE resume, 204 when idle
	mux.HandleFunc("POST /api/chats/{id}/abort", streamHandler.Abort)

	// History mutation routes
	mux.HandleFunc("POST /api/chats/{id}/messages/{messageID}/regenerate", historyHandler.Regenerate) // SSE response
	mux.HandleFunc("POST /api/chats/{id}/messages/{messageID}/delete-after", historyHandler.DeleteAfter)
	mux.HandleFunc("POST /api/chats/{id}/branch", historyHandler.Branch)

	// Middleware chain: CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	h = middleware.Auth(jwtVerifier, logger)(h)
	h = middleware.Recovery(logger)(h)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: stop accepting, let in-flight streams persist.
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}

	logger.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/rest"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/sqlserver"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/supabase"
	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/crypto"
	"github.com/ekaya-inc/ekaya-query/pkg/database"
	"github.com/ekaya-inc/ekaya-query/pkg/handlers"
	"github.com/ekaya-inc/ekaya-query/pkg/llm"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/mcp"
	mcpauth "github.com/ekaya-inc/ekaya-query/pkg/mcp/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-query/pkg/middleware"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.User+"@"+cfg.Database.Host+"/"+cfg.Database.Database),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Duration("query_timeout", cfg.Query.Timeout),
		zap.Bool("block_low_confidence", cfg.Query.BlockLowConfidence))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, database.ConfigFromSettings(cfg.Database))
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	cipher, err := newConfigCipher(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize credentials encryption", zap.Error(err))
	}

	schemaCache, closeCache, err := newSchemaCache(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to schema cache", zap.Error(err))
	}
	defer closeCache()

	llmClient, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	// Repositories
	connectionRepo := repositories.NewConnectionRepository()
	historyRepo := repositories.NewHistoryRepository()

	// Services
	adapterFactory := datasource.NewAdapterFactory(logger)
	connectionService := services.NewConnectionService(connectionRepo, cipher, adapterFactory, logger)
	historyService := services.NewHistoryService(historyRepo, cfg.Query.HistoryPageSize)
	translator := services.NewQueryTranslator(llmClient, cfg.LLM, cfg.Query.ConfidenceThreshold, logger)
	catalog := services.NewStaticEndpointCatalog(services.DefaultAPIResources)
	orchestrator := services.NewQueryOrchestrator(connectionService, adapterFactory, translator, catalog, schemaCache, historyRepo, cfg.Query, logger)

	// Auth
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)
	tenantMiddleware := database.WithTenantContext(db, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewConnectionsHandler(connectionService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewAIQueriesHandler(orchestrator, historyService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	mcpServer := mcp.NewServer("ekaya-query", cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, db)
	tools.RegisterConnectionTools(mcpServer.MCP(), &tools.ConnectionToolDeps{
		Connections:   connectionService,
		Orchestrator:  orchestrator,
		TenantContext: services.NewTenantContextFunc(db),
		Logger:        logger,
	})
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, mcpauth.NewMiddleware(authService, logger))

	addr := cfg.BindAddr + ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// Writes may wait for a full query pipeline run.
		WriteTimeout: cfg.Query.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting ekaya-query", zap.String("addr", addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		_ = server.Close()
		os.Exit(1)
	}
}

// newConfigCipher returns the credentials cipher. Without a key, configs are
// stored in plain JSON, which is only accepted in the local environment.
func newConfigCipher(cfg *config.Config, logger *zap.Logger) (crypto.ConfigCipher, error) {
	if cfg.CredentialsKey == "" {
		if cfg.Env != "local" {
			return nil, errors.New("CREDENTIALS_KEY is required outside the local environment")
		}
		logger.Warn("CREDENTIALS_KEY not set; connection configs are stored unencrypted")
		return crypto.PassthroughConfigCipher{}, nil
	}
	return crypto.NewTenantConfigCipher(cfg.CredentialsKey)
}

// newSchemaCache returns the Redis schema cache when Redis is configured and
// a cache that never hits otherwise.
func newSchemaCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (services.SchemaCache, func(), error) {
	client, err := database.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		logger.Info("Schema cache disabled (REDIS_HOST not set)")
		return services.NoopSchemaCache{}, func() {}, nil
	}
	logger.Info("Schema cache enabled", zap.String("host", cfg.Host), zap.Duration("ttl", cfg.SchemaTTL))
	return services.NewRedisSchemaCache(client, cfg.SchemaTTL, logger), func() { _ = client.Close() }, nil
}

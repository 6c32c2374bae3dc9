package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	sssoecho "github.com/pilab-dev/teams-collab/api/echo"
	sssogin "github.com/pilab-dev/teams-collab/api/gin"
	"github.com/pilab-dev/teams-collab/bot"
	"github.com/pilab-dev/teams-collab/cache"
	cacheredis "github.com/pilab-dev/teams-collab/cache/redis"
	"github.com/pilab-dev/teams-collab/config"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/internal/audit"
	"github.com/pilab-dev/teams-collab/internal/auth"
	"github.com/pilab-dev/teams-collab/internal/crypto"
	"github.com/pilab-dev/teams-collab/internal/memstore"
	"github.com/pilab-dev/teams-collab/internal/metrics"
	"github.com/pilab-dev/teams-collab/internal/server"
	"github.com/pilab-dev/teams-collab/internal/telemetry"
	"github.com/pilab-dev/teams-collab/interop"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/middleware"
	"github.com/pilab-dev/teams-collab/mongodb"
	"github.com/pilab-dev/teams-collab/notes"
	"github.com/pilab-dev/teams-collab/services"
	"github.com/pilab-dev/teams-collab/storage"
	"github.com/pilab-dev/teams-collab/teams"
	"github.com/pilab-dev/teams-collab/token"
	"github.com/pilab-dev/teams-collab/tracing"
)

const botFrameworkIssuer = "https://api.botframework.com"

var appLogger log.Logger

// repositories groups the persistence backends selected by STORAGE_BACKEND.
type repositories struct {
	accounts domain.AccountRepository
	refs     domain.ConversationReferenceRepository
	notes    domain.NoteRepository
	values   storage.Storage
	ready    func(ctx context.Context) error
}

func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		zerolog.New(os.Stdout).With().Timestamp().Logger().Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal(ctx, "Invalid configuration", err, nil)
	}
	appLogger.Info(ctx, "Starting teams-collab server...", log.Fields{
		"http_port":       cfg.HTTPPort,
		"bot_port":        cfg.BotPort,
		"storage_backend": cfg.StorageBackend,
		"code_store":      cfg.CodeStore,
		"log_level":       cfg.LogLevel,
		"otel_service":    cfg.OtelServiceName,
	})

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName, os.Stdout)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err, nil)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	meterProvider, err := telemetry.InitMeterProvider(registry)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err, nil)
	}
	metrics.InitCustomMetrics(registry)

	sessionKey, err := crypto.LoadOrGenerateRSAKey(cfg.SessionKeyPath)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to load session signing key", err, nil)
	}
	if cfg.SessionKeyPath == "" {
		appLogger.Warn(ctx, "SESSION_KEY_PATH is empty, sessions will not survive a restart")
	}
	sessions := token.NewSessionCodec(sessionKey, cfg.SessionIssuer, cfg.SessionTTL)

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize storage", err, nil)
	}

	codes, stopCodes := openCodeStore(cfg)

	scoped := storage.NewScopedStore(repos.values, cfg.BotChannelID, cfg.BotID, cfg.VersionCacheTTL)
	scoped.OnChange(func(ref storage.Ref, scope storage.Scope, key string, value storage.Value) {
		metrics.ScopedValueWritesTotal.WithLabelValues(string(scope)).Inc()
		appLogger.Debug(context.Background(), "Scoped value changed", log.Fields{
			"conversation": ref.ConversationID,
			"user":         ref.UserID,
			"scope":        scope,
			"key":          key,
			"version":      value.Version,
		})
	})

	// Teams clients
	connector := teams.NewConnectorClient(ctx, teams.ConnectorConfig{
		AppID:         cfg.BotID,
		AppPassword:   cfg.BotPassword,
		TokenURL:      cfg.BotTokenURL,
		RatePerSecond: cfg.BotRateLimit,
	})
	graph := teams.NewGraphClient(teams.GraphConfig{
		ClientID:       cfg.AADClientID,
		ClientSecret:   cfg.AADClientSecret,
		TenantTokenURL: cfg.TenantTokenURL,
		BaseURL:        cfg.GraphBaseURL,
	})
	obo := &teams.OBOExchanger{
		ClientID:       cfg.AADClientID,
		ClientSecret:   cfg.AADClientSecret,
		TenantTokenURL: cfg.TenantTokenURL,
	}

	// Verifiers
	authority := strings.TrimSuffix(cfg.AADAuthority, "/")
	aadVerifier := token.NewExternalVerifier(token.ExternalVerifierConfig{
		Keys:      token.NewKeySet(cfg.AADJWKSURL, cfg.JWKSCacheTTL, nil),
		Audiences: cfg.AADAudiences,
		Issuers: []string{
			authority + "/{tenantid}/v2.0",
			"https://sts.windows.net/{tenantid}/",
		},
		RequireIdentity: true,
	})
	botVerifier := token.NewExternalVerifier(token.ExternalVerifierConfig{
		Keys:      token.NewKeySet(cfg.BotJWKSURL, cfg.JWKSCacheTTL, nil),
		Audiences: []string{cfg.BotID},
		Issuers:   []string{botFrameworkIssuer},
	})

	// Services
	authenticator := middleware.NewAuthenticator(sessions, aadVerifier, repos.accounts)
	accountSvc := services.NewAccountService(
		repos.accounts,
		auth.NewBcryptPasswordHasher(bcrypt.DefaultCost),
		codes,
		audit.NewLogger(os.Stdout),
	)
	notesSvc := notes.NewService(repos.notes, repos.refs, connector, appLogger)

	router := interop.NewRouter(interop.RouterConfig{
		Values:    scoped,
		Refs:      repos.refs,
		Roster:    connector,
		Directory: graph,
		AppID:     cfg.AADClientID,
		Logger:    appLogger,
	})
	notes.RegisterActions(router, notesSvc)
	appLogger.Info(ctx, "Interop actions registered", log.Fields{"actions": router.Actions()})

	api := sssogin.NewAPI(sssogin.Options{
		Router:        router,
		Authenticator: authenticator,
		Sessions:      sessions,
		Accounts:      accountSvc,
		Notes:         notesSvc,
		OBO:           obo,
		OBOScopes:     cfg.AADOBOScopes,
		Profile:       graph,
		CookieDomain:  cfg.CookieDomain,
		Ready:         repos.ready,
		Logger:        appLogger,
	})

	ingestor := bot.NewIngestor(repos.refs, cfg.BotID, appLogger)
	botHandler := bot.NewHandler(ingestor, repos.accounts, notesSvc, scoped, connector, appLogger)
	botAPI := sssoecho.NewBotAPI(botVerifier, botHandler, appLogger)

	httpServer := server.NewHTTPServer(cfg, appLogger, api, registry)
	botServer := server.NewBotServer(cfg, appLogger, botAPI)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info(gctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		return listen(httpServer)
	})
	g.Go(func() error {
		appLogger.Info(gctx, fmt.Sprintf("Bot server listening on port %s", cfg.BotPort))
		return listen(botServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info(context.Background(), "Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return errors.Join(httpServer.Shutdown(shutdownCtx), botServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), "Server stopped with error", err, nil)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	appLogger.Info(shutdownCtx, "Shutting down TracerProvider...")
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err, nil)
	}
	telemetry.Shutdown(shutdownCtx, meterProvider)

	scoped.Close()
	stopCodes()
	if cfg.StorageBackend == config.StorageMongoDB {
		appLogger.Info(shutdownCtx, "Closing MongoDB connection...")
		mongodb.CloseMongoDB(shutdownCtx)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.ServerConfig) (*repositories, error) {
	if cfg.StorageBackend == config.StorageMemory {
		appLogger.Warn(ctx, "Using in-memory storage, state is lost on restart")
		return &repositories{
			accounts: memstore.NewAccounts(),
			refs:     memstore.NewConversationReferences(),
			notes:    memstore.NewNotes(),
			values:   storage.NewMemoryStorage(),
		}, nil
	}

	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		return nil, err
	}
	db := mongodb.GetDB()

	accounts, err := mongodb.NewAccountRepository(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("account repository: %w", err)
	}
	noteRepo, err := mongodb.NewNoteRepository(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("note repository: %w", err)
	}

	return &repositories{
		accounts: accounts,
		refs:     mongodb.NewConversationReferenceRepository(db),
		notes:    noteRepo,
		values:   mongodb.NewScopedStorage(db),
		ready:    mongodb.Ping,
	}, nil
}

func openCodeStore(cfg *config.ServerConfig) (cache.CodeStore, func()) {
	if cfg.CodeStore == config.CodeStoreRedis {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return cacheredis.NewCodeStore(client, cfg.RedisPrefix, cfg.SignupCodeTTL), func() {
			_ = client.Close()
		}
	}
	store := cache.NewMemoryCodeStore(cfg.SignupCodeTTL)
	return store, store.Stop
}

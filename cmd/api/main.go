package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/kaigo-note/api/internal/handlers"
	"github.com/kaigo-note/api/internal/platform/auth"
	"github.com/kaigo-note/api/internal/platform/config"
	"github.com/kaigo-note/api/internal/platform/events"
	pfirestore "github.com/kaigo-note/api/internal/platform/firestore"
	"github.com/kaigo-note/api/internal/platform/idempotency"
	"github.com/kaigo-note/api/internal/platform/observability"
	"github.com/kaigo-note/api/internal/platform/secrets"
	platformstorage "github.com/kaigo-note/api/internal/platform/storage"
	firestoreRepo "github.com/kaigo-note/api/internal/repositories/firestore"
	"github.com/kaigo-note/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	secretsProject := strings.TrimSpace(os.Getenv("API_SECRETS_PROJECT_ID"))
	if secretsProject == "" {
		secretsProject = strings.TrimSpace(os.Getenv("API_FIRESTORE_PROJECT_ID"))
	}
	fetcher, err := secrets.NewFetcher(ctx, secretsProject, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := handlers.BuildInfo{
		Version:     strings.TrimSpace(os.Getenv("API_BUILD_VERSION")),
		CommitSHA:   strings.TrimSpace(os.Getenv("API_BUILD_COMMIT")),
		Environment: strings.TrimSpace(os.Getenv("API_ENVIRONMENT")),
		StartedAt:   startedAt,
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	importTopic := pubsubClient.Topic(cfg.PubSub.ImportTopic)
	defer importTopic.Stop()

	importPublisher, err := events.NewPubSubImportPublisher(importTopic,
		events.WithStaticAttributes(map[string]string{"source": "kaigo-note-api"}),
	)
	if err != nil {
		logger.Fatal("failed to initialise import event publisher", zap.Error(err))
	}

	var importArchive *platformstorage.ImportArchive
	if bucket := strings.TrimSpace(cfg.Storage.ArchiveBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		importArchive, err = platformstorage.NewImportArchive(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise import archive", zap.Error(err))
		}
	} else {
		logger.Warn("import archive disabled: no archive bucket configured")
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	var authMiddleware func(http.Handler) http.Handler
	if len(cfg.Auth.Tokens) > 0 {
		authenticator, err := auth.NewAuthenticator(cfg.Auth.Tokens)
		if err != nil {
			logger.Fatal("failed to initialise authenticator", zap.Error(err))
		}
		authMiddleware = authenticator.Middleware()
	} else {
		logger.Warn("api authentication disabled: no client tokens configured")
	}

	visitRepo, err := firestoreRepo.NewVisitRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise visit repository", zap.Error(err))
	}
	visitPatternRepo, err := firestoreRepo.NewVisitPatternRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise visit pattern repository", zap.Error(err))
	}
	namePatternRepo, err := firestoreRepo.NewNamePatternRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise name pattern repository", zap.Error(err))
	}
	rosterRepo, err := firestoreRepo.NewRosterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise roster repository", zap.Error(err))
	}

	matcher := services.NewNameMatcher(cfg.Import.MatchThreshold)
	recordClock := services.NewRecordClock(rand.NewSource(time.Now().UnixNano()))

	resolutionService, err := services.NewNameResolutionService(services.NameResolutionServiceDeps{
		Roster:   rosterRepo,
		Patterns: namePatternRepo,
		Matcher:  matcher,
		Clock:    time.Now,
		Logger:   newServiceLogger(logger.Named("name_resolution")),
	})
	if err != nil {
		logger.Fatal("failed to initialise name resolution service", zap.Error(err))
	}

	visitGroupService, err := services.NewVisitGroupService(services.VisitGroupServiceDeps{
		Visits:   visitRepo,
		Patterns: visitPatternRepo,
		Clock:    time.Now,
		Logger:   newServiceLogger(logger.Named("visit_group")),
	})
	if err != nil {
		logger.Fatal("failed to initialise visit group service", zap.Error(err))
	}

	importService, err := services.NewImportService(services.ImportServiceDeps{
		Visits:      visitRepo,
		Resolution:  resolutionService,
		RecordClock: recordClock,
		Events:      importPublisher,
		Clock:       time.Now,
		Logger:      newServiceLogger(logger.Named("import")),
		BatchSize:   cfg.Import.BatchSize,
	})
	if err != nil {
		logger.Fatal("failed to initialise import service", zap.Error(err))
	}

	importOpts := []handlers.ImportHandlerOption{
		handlers.WithImportLogger(newServiceLogger(logger.Named("import_http"))),
	}
	if importArchive != nil {
		importOpts = append(importOpts, handlers.WithImportArchiver(importArchive))
	}
	importHandlers := handlers.NewImportHandlers(importService, importOpts...)
	visitHandlers := handlers.NewVisitHandlers(visitGroupService)
	patternHandlers := handlers.NewPatternHandlers(visitGroupService)
	nameHandlers := handlers.NewNameHandlers(matcher, resolutionService)

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			_, err := firestoreClient.Collections(ctx).Next()
			if err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		}),
		handlers.WithReadinessCheck("pubsub", func(ctx context.Context) error {
			exists, err := importTopic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s not found", cfg.PubSub.ImportTopic)
			}
			return nil
		}),
	)

	importMiddlewares := []func(http.Handler) http.Handler{idempotencyMiddleware}
	if authMiddleware != nil {
		importMiddlewares = append([]func(http.Handler) http.Handler{authMiddleware}, importMiddlewares...)
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithImportRoutes(importHandlers.Routes),
		handlers.WithImportMiddlewares(importMiddlewares...),
		handlers.WithVisitRoutes(visitHandlers.Routes),
		handlers.WithPatternRoutes(patternHandlers.Routes),
		handlers.WithNameRoutes(nameHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("kaigo-note api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newServiceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}

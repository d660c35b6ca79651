package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/abyssorcdev/duppla/internal/audit"
	"github.com/abyssorcdev/duppla/internal/batch"
	"github.com/abyssorcdev/duppla/internal/cache"
	"github.com/abyssorcdev/duppla/internal/config"
	"github.com/abyssorcdev/duppla/internal/domain"
	"github.com/abyssorcdev/duppla/internal/handlers"
	"github.com/abyssorcdev/duppla/internal/middleware"
	"github.com/abyssorcdev/duppla/internal/notify"
	"github.com/abyssorcdev/duppla/internal/queue"
	"github.com/abyssorcdev/duppla/internal/ratelimit"
	"github.com/abyssorcdev/duppla/internal/repositories"
	"github.com/abyssorcdev/duppla/internal/usecases"
	"github.com/abyssorcdev/duppla/pkg/logger"
)

const (
	// The database gets a few attempts to wake up before startup fails.
	healthCheckRetries    = 5
	healthCheckRetryDelay = 2 * time.Second

	shutdownTimeout = 30 * time.Second
)

// App wires every component of the service and owns their lifecycle.
type App struct {
	config *config.Config
	logger *zap.Logger

	store   *repositories.ReindexerStore // nil for the memory backend
	docs    domain.DocumentRepository
	jobs    domain.JobRepository
	auditDB domain.AuditRepository

	kv       domain.KV
	memKV    *cache.MemoryKV // nil when Redis backs kv
	redisKV  *cache.RedisKV  // nil for the memory backend
	trail    *audit.Trail
	usecase  *usecases.DocumentUsecase
	processor  *batch.Processor
	taskq    *queue.Queue
	dispatch *notify.Dispatcher
	server   *http.Server

	initOnce sync.Once
	initErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp creates an empty application shell; Initialize does the real setup.
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize sets up every component exactly once, all or nothing.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

func (a *App) doInitialize() error {
	if err := logger.Init("info", true); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger.Get()

	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		a.logger.Warn("failed to load config file, falling back to defaults and env",
			zap.Error(err),
		)
		cfg, err = config.Load("")
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
	}
	a.config = cfg
	a.logger.Info("configuration loaded",
		zap.String("server_host", cfg.Server.Host),
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
	)

	if err := a.initializeStore(); err != nil {
		return fmt.Errorf("store initialization failed: %w", err)
	}

	if err := a.initializeKV(); err != nil {
		return fmt.Errorf("key-value store initialization failed: %w", err)
	}

	a.trail = audit.NewTrail(a.auditDB, logger.Named("audit"))
	a.dispatch = notify.NewDispatcherFromConfig(cfg.Notifications, logger.Named("notify"))

	a.processor = batch.NewProcessor(
		a.docs,
		a.jobs,
		a.trail,
		a.dispatch,
		logger.Named("batch"),
		batch.Options{Workers: cfg.Batch.Workers},
	)
	a.taskq = queue.New(a.processor.ExecuteBatch, logger.Named("queue"), queue.Options{
		Workers:    cfg.Batch.QueueWorkers,
		BufferSize: cfg.Batch.QueueSize,
		MaxRetries: cfg.Batch.MaxRetries,
	})
	a.processor.SetQueue(a.taskq)
	a.taskq.Start()

	a.usecase = usecases.NewDocumentUsecase(a.docs, a.trail, logger.Named("documents"))

	if err := a.initializeServer(); err != nil {
		return fmt.Errorf("server initialization failed: %w", err)
	}

	a.logger.Info("application ready")
	return nil
}

// initializeStore connects the configured persistence backend. The reindexer
// backend retries because the database may start slower than the app.
func (a *App) initializeStore() error {
	if a.config.Store.Backend == "memory" {
		a.docs = repositories.NewMemoryDocumentRepository()
		a.jobs = repositories.NewMemoryJobRepository()
		a.auditDB = repositories.NewMemoryAuditRepository()
		a.logger.Info("using in-memory store")
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < healthCheckRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info("retrying store connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", healthCheckRetryDelay),
			)
			time.Sleep(healthCheckRetryDelay)
		}

		store, err := repositories.NewReindexerStore(a.config.Store.DSN, logger.Named("store"))
		if err != nil {
			lastErr = err
			a.logger.Warn("store connection failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureCollections(ctx); err != nil {
			cancel()
			store.Close()
			lastErr = err
			a.logger.Warn("namespace initialization failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		cancel()

		a.store = store
		a.docs = store.Documents()
		a.jobs = store.Jobs()
		a.auditDB = store.Audit()
		a.logger.Info("store initialized",
			zap.Int("attempts", attempt+1),
			zap.String("dsn", a.config.Store.DSN),
		)
		return nil
	}

	return fmt.Errorf("store unavailable after %d attempts: %w", healthCheckRetries, lastErr)
}

// initializeKV selects the key-value backend for rate limiting and the API
// key cache: Redis when a URL is configured, the sharded in-memory store
// otherwise.
func (a *App) initializeKV() error {
	if a.config.Redis.URL != "" {
		rkv, err := cache.NewRedisKV(a.config.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rkv.Ping(ctx); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		a.redisKV = rkv
		a.kv = rkv
		a.logger.Info("using redis key-value backend")
		return nil
	}

	mkv := cache.NewMemoryKV(a.config.Cache.Shards)
	mkv.SetCleanupInterval(time.Duration(a.config.Cache.CleanupInterval) * time.Second)
	mkv.StartCleanupWorker()
	a.memKV = mkv
	a.kv = mkv
	a.logger.Info("using in-memory key-value backend",
		zap.Int("shards", a.config.Cache.Shards),
	)
	return nil
}

// initializeServer sets up routing and middleware.
func (a *App) initializeServer() error {
	docHandler := handlers.NewDocumentHandler(a.usecase, logger.Named("http"))
	batchHandler := handlers.NewBatchHandler(a.processor, a.jobs, logger.Named("http"))

	limiter := ratelimit.NewLimiter(
		a.kv,
		int64(a.config.RateLimit.Requests),
		a.config.RateLimit.Window(),
		logger.Named("ratelimit"),
	)
	keyCache := ratelimit.NewKeyCache(a.kv, a.config.Auth.TTL(), logger.Named("auth"))

	r := chi.NewRouter()

	// Health stays outside the middleware chain so probes answer fast.
	r.Get("/health", a.healthCheckHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(a.logger))
		r.Use(middleware.RecoveryMiddleware(a.logger))
		r.Use(middleware.TimeoutMiddleware(30 * time.Second))
		r.Use(middleware.RateLimitMiddleware(limiter, a.logger))
		if !a.config.Auth.DisableAuth {
			validator := middleware.StaticKeyValidator(a.config.Auth.APIKeys)
			r.Use(middleware.AuthMiddleware(keyCache, validator, a.logger))
		}

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docHandler.ListDocuments)
			r.Post("/", docHandler.CreateDocument)
			r.Get("/{id}", docHandler.GetDocument)
			r.Patch("/{id}", docHandler.UpdateDocument)
			r.Post("/{id}/status", docHandler.ChangeStatus)
			r.Get("/{id}/audit", docHandler.GetAuditTrail)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.ListJobs)
			r.Post("/", batchHandler.SubmitBatch)
			r.Get("/{id}", batchHandler.GetJob)
		})
	})

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return nil
}

// healthCheckHandler reports liveness plus store connectivity.
func (a *App) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")

	if a.store != nil {
		if err := a.store.CheckConnection(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			health["status"] = "unhealthy"
			health["error"] = err.Error()
			json.NewEncoder(w).Encode(health)
			return
		}
		health["database"] = "connected"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// StartBackgroundJobs launches the periodic health logger.
func (a *App) StartBackgroundJobs() {
	if a.store == nil {
		return
	}
	a.wg.Add(1)
	go a.periodicHealthCheck()
}

// periodicHealthCheck logs store connectivity every 30 seconds, which helps
// debug intermittent network trouble.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("background health check stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.store.CheckConnection(ctx); err != nil {
				a.logger.Warn("background health check: store unreachable", zap.Error(err))
			} else {
				a.logger.Debug("background health check: ok")
			}
			cancel()
		}
	}
}

// Start begins serving requests. Non-blocking; main waits on OS signals.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.StartBackgroundJobs()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("starting HTTP server",
			zap.String("addr", a.server.Addr),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown stops the application gracefully, letting in-flight requests and
// batch executions finish.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down...")

		// Stop background tasks first.
		a.cancel()

		// Stop accepting new HTTP requests.
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("server shutdown error", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		// Drain the task queue so accepted jobs finish or get persisted.
		if a.taskq != nil {
			a.taskq.Stop()
		}

		if a.memKV != nil {
			a.memKV.StopCleanupWorker()
		}
		if a.redisKV != nil {
			if err := a.redisKV.Close(); err != nil {
				a.logger.Error("redis close error", zap.Error(err))
			}
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Error("store close error", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("all background tasks finished")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("timed out waiting for background tasks")
		}

		if a.logger != nil {
			_ = a.logger.Sync()
		}

		a.logger.Info("shutdown complete")
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal startup error: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}

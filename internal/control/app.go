package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressly/goose/v3"

	"github.com/stellarstream/watcher/internal/api"
	"github.com/stellarstream/watcher/internal/audit"
	"github.com/stellarstream/watcher/internal/batch"
	"github.com/stellarstream/watcher/internal/core/config"
	"github.com/stellarstream/watcher/internal/infra/redis"
	"github.com/stellarstream/watcher/internal/infra/storage"
	"github.com/stellarstream/watcher/internal/infra/storage/jsonfile"
	"github.com/stellarstream/watcher/internal/infra/storage/memory"
	"github.com/stellarstream/watcher/internal/infra/storage/postgres"
	"github.com/stellarstream/watcher/internal/lifecycle"
	"github.com/stellarstream/watcher/internal/soroban"
	"github.com/stellarstream/watcher/internal/watcher"
	"github.com/stellarstream/watcher/internal/webhook"
)

// App owns every long-lived component and their startup/shutdown order.
type App struct {
	cfg         *config.AppConfig
	watcher     *watcher.Watcher
	apiServer   *api.Server
	webhooks    *webhook.Service
	rpcClient   *soroban.Client
	db          *postgres.DB
	redisClient *redis.Client
	log         *slog.Logger
}

// NewApp wires the application from configuration. Storage backend priority:
// Postgres when a database URL is set, otherwise the JSON file store,
// otherwise pure in-memory.
func NewApp(cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	var (
		streamRepo     storage.StreamRepository
		auditRepo      storage.AuditLogRepository
		webhookRepo    storage.WebhookRepository
		checkpointRepo storage.CheckpointRepository
		db             *postgres.DB
	)

	switch {
	case cfg.Database.URL != "":
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("migrate db: %w", err)
		}

		streamRepo = postgres.NewStreamRepo(db)
		auditRepo = postgres.NewAuditRepo(db)
		webhookRepo = postgres.NewWebhookRepo(db)
		checkpointRepo = postgres.NewCheckpointRepo(db)
		log.Info("using PostgreSQL storage")

	case cfg.Store.Path != "":
		fileStore := jsonfile.New(cfg.Store.Path)
		mem := memory.NewMemoryStorage()

		streamRepo = fileStore
		checkpointRepo = fileStore.Checkpoint()
		// Audit entries and webhook registrations stay in memory in file
		// mode; only the ledger index and cursor survive a restart.
		auditRepo = memory.NewAuditRepo(mem)
		webhookRepo = memory.NewWebhookRepo(mem)
		log.Info("using JSON file storage", "path", cfg.Store.Path)

	default:
		mem := memory.NewMemoryStorage()
		streamRepo = memory.NewStreamRepo(mem)
		auditRepo = memory.NewAuditRepo(mem)
		webhookRepo = memory.NewWebhookRepo(mem)
		checkpointRepo = memory.NewCheckpointRepo(mem)
		log.Info("using in-memory storage")
	}

	var dedup lifecycle.DedupStore
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		dedup = redis.NewDedupStore(redisClient)
		log.Info("using Redis replay dedup")
	} else {
		dedup = lifecycle.NewMemoryDedup(cfg.Watcher.DedupWindow)
	}

	lifecycleSvc := lifecycle.NewService(lifecycle.Config{
		StrictCancel: cfg.Watcher.StrictCancel,
	}, streamRepo, dedup)

	auditLog := audit.NewLog(auditRepo)
	webhookSvc := webhook.NewService(webhookRepo)
	rpcClient := soroban.NewClient(cfg.RPC.URL, cfg.RPC.ContractID, cfg.RPC.Timeout)

	w := watcher.New(watcher.Config{
		PollInterval: cfg.Watcher.PollInterval,
		RetryDelay:   cfg.Watcher.RetryDelay,
		MaxRetries:   cfg.Watcher.MaxRetries,
		PageSize:     cfg.Watcher.PageSize,
	}, rpcClient, lifecycleSvc, auditLog, checkpointRepo, webhookSvc)

	apiServer := api.NewServer(cfg.Server.Port,
		batch.NewService(streamRepo), w, auditLog, webhookSvc)

	return &App{
		cfg:         cfg,
		watcher:     w,
		apiServer:   apiServer,
		webhooks:    webhookSvc,
		rpcClient:   rpcClient,
		db:          db,
		redisClient: redisClient,
		log:         log,
	}, nil
}

// Start brings the watcher up and serves HTTP in the background.
func (a *App) Start(ctx context.Context) error {
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}
	a.watcher.Start(ctx)

	go func() {
		if err := a.apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("api server failed", "error", err)
		}
	}()
	a.log.Info("api server listening", "port", a.cfg.Server.Port)
	return nil
}

// Stop tears components down in reverse order of startup.
func (a *App) Stop(ctx context.Context) {
	if err := a.apiServer.Stop(ctx); err != nil {
		a.log.Warn("api server shutdown", "error", err)
	}
	a.watcher.Stop()
	a.webhooks.Drain()
	a.rpcClient.Close()
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.db != nil {
		a.db.DB.Close()
	}
	a.log.Info("shutdown complete")
}

// Watcher exposes the poll loop for CLI status commands.
func (a *App) Watcher() *watcher.Watcher {
	return a.watcher
}

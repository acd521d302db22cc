// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/api"
	"github.com/vasilistotskas/weblens-sub000/internal/clock/system"
	"github.com/vasilistotskas/weblens-sub000/internal/config"
	"github.com/vasilistotskas/weblens-sub000/internal/credit"
	"github.com/vasilistotskas/weblens-sub000/internal/fetch"
	"github.com/vasilistotskas/weblens-sub000/internal/hash/sha256"
	"github.com/vasilistotskas/weblens-sub000/internal/id/uuid"
	"github.com/vasilistotskas/weblens-sub000/internal/monitor"
	pubmem "github.com/vasilistotskas/weblens-sub000/internal/publisher/memory"
	pubgcp "github.com/vasilistotskas/weblens-sub000/internal/publisher/pubsub"
	snapgcs "github.com/vasilistotskas/weblens-sub000/internal/snapshot/gcs"
	snaplocal "github.com/vasilistotskas/weblens-sub000/internal/snapshot/local"
	snapmem "github.com/vasilistotskas/weblens-sub000/internal/snapshot/memory"
	statsmem "github.com/vasilistotskas/weblens-sub000/internal/stats/memory"
	statsredis "github.com/vasilistotskas/weblens-sub000/internal/stats/redis"
	storemem "github.com/vasilistotskas/weblens-sub000/internal/storage/memory"
	storepg "github.com/vasilistotskas/weblens-sub000/internal/storage/postgres"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// App holds every long-lived service the server needs. It is built once
// at startup and torn down in reverse order by Close.
type App struct {
	Logger     *zap.Logger
	Config     config.Config
	Hub        *credit.Hub
	Accounting *credit.Accounting
	Fetcher    *fetch.Orchestrator
	Monitors   *monitor.Registry
	Checker    *monitor.Checker
	Scheduler  *monitor.Scheduler
	Server     *api.Server

	pool        *pgxpool.Pool
	stats       webintel.StatsStore
	publisher   webintel.Publisher
	gcsClient   *gcstorage.Client
	pubsubOwned *pubgcp.Publisher
}

// New builds the full service graph from configuration. It fails fast:
// any backend that cannot be reached at startup aborts initialization.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Logger: logger, Config: cfg}

	clk := system.New()
	ids := uuid.New()

	accountStore, monitorStore, err := a.buildStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Hub = credit.NewHub(accountStore, ids, clk, logger)
	bonus := make([]credit.BonusTier, 0, len(cfg.Credit.BonusTiers))
	for _, tier := range cfg.Credit.BonusTiers {
		bonus = append(bonus, credit.BonusTier{MinCents: tier.MinCents, Percent: tier.Percent})
	}
	a.Accounting = credit.NewAccounting(a.Hub, accountStore, bonus, logger)

	if err := a.buildStats(cfg, clk); err != nil {
		a.Close()
		return nil, err
	}
	providers := buildProviders(cfg)
	registry := fetch.NewRegistry(providers, a.stats, clk, logger)
	for _, p := range registry.Providers() {
		desc := p.Descriptor()
		logger.Info("fetch provider registered",
			zap.String("id", desc.ID),
			zap.Bool("native", desc.Native),
			zap.Int("priority", desc.Priority),
		)
	}
	a.Fetcher = fetch.NewOrchestrator(registry, cfg.SettlementBuffer(), logger)

	snapshots, err := a.buildSnapshots(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildPublisher(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.Monitors = monitor.NewRegistry(monitorStore, ids, clk, logger)
	a.Checker = monitor.NewChecker(
		a.Monitors,
		a.Accounting,
		a.Fetcher,
		sha256.New(),
		snapshots,
		monitor.NewWebhookNotifier(nil, logger),
		a.publisher,
		ids,
		clk,
		logger,
		monitor.CheckerConfig{
			CostCents:              cfg.Monitor.CostCents,
			FetchTimeout:           cfg.MonitorFetchTimeout(),
			Topic:                  cfg.PubSub.Topic,
			MaxConsecutiveFailures: cfg.Monitor.MaxConsecutiveFailures,
		},
	)
	a.Scheduler = monitor.NewScheduler(a.Monitors, a.Checker, clk, logger)

	a.Server = api.NewServer(a.Accounting, a.Fetcher, a.Monitors, a.Checker, a.Scheduler, logger, cfg)
	return a, nil
}

// Start loads active monitors into the scheduler and begins its timer
// loop.
func (a *App) Start(ctx context.Context) error {
	return a.Scheduler.Start(ctx)
}

// Handler returns the HTTP handler for the API surface.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// Close tears services down in reverse dependency order. Safe to call
// on a partially built App.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Close()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.pubsubOwned != nil {
		if err := a.pubsubOwned.Close(); err != nil {
			a.Logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if closer, ok := a.stats.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn("stats store close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (webintel.AccountStore, webintel.MonitorStore, error) {
	switch cfg.DB.Backend {
	case "postgres":
		logger.Info("connecting to PostgreSQL")
		pool, err := storepg.NewPool(ctx, storepg.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DBMaxConnLifetime(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initialize postgres pool: %w", err)
		}
		a.pool = pool
		if err := storepg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			a.pool = nil
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		accounts, err := storepg.NewAccountStore(pool)
		if err != nil {
			return nil, nil, err
		}
		monitors, err := storepg.NewMonitorStore(pool)
		if err != nil {
			return nil, nil, err
		}
		return accounts, monitors, nil
	case "memory", "":
		logger.Info("using in-memory stores; data does not survive restarts")
		return storemem.NewAccountStore(), storemem.NewMonitorStore(), nil
	default:
		return nil, nil, fmt.Errorf("unknown db backend: %s", cfg.DB.Backend)
	}
}

func (a *App) buildStats(cfg config.Config, clk webintel.Clock) error {
	switch cfg.Stats.Backend {
	case "redis":
		a.Logger.Info("using Redis provider stats", zap.String("addr", cfg.Stats.Addr))
		a.stats = statsredis.New(statsredis.Config{
			Addr:     cfg.Stats.Addr,
			Password: cfg.Stats.Password,
			DB:       cfg.Stats.DB,
		})
	case "memory", "":
		a.stats = statsmem.New(clk)
	default:
		return fmt.Errorf("unknown stats backend: %s", cfg.Stats.Backend)
	}
	return nil
}

func (a *App) buildSnapshots(ctx context.Context, cfg config.Config, logger *zap.Logger) (webintel.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "gcs":
		logger.Info("using GCS snapshot store", zap.String("bucket", cfg.Snapshot.Bucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs client: %w", err)
		}
		a.gcsClient = client
		return snapgcs.New(client, snapgcs.Config{Bucket: cfg.Snapshot.Bucket, Prefix: cfg.Snapshot.Prefix})
	case "local":
		logger.Info("using local snapshot store", zap.String("dir", cfg.Snapshot.BaseDir))
		return snaplocal.New(snaplocal.Config{BaseDir: cfg.Snapshot.BaseDir})
	case "memory", "":
		return snapmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %s", cfg.Snapshot.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if !cfg.PubSub.Enabled {
		a.publisher = pubmem.New()
		return nil
	}
	logger.Info("connecting to GCP Pub/Sub",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.Topic),
	)
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("initialize pubsub client: %w", err)
	}
	pub, err := pubgcp.New(client)
	if err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			logger.Warn("pubsub client close failed", zap.Error(closeErr))
		}
		return err
	}
	a.pubsubOwned = pub
	a.publisher = pub
	return nil
}

// buildProviders turns configured descriptors into fetch providers. The
// native provider fetches in-process; everything else goes through its
// proxy endpoint.
func buildProviders(cfg config.Config) []webintel.FetchProvider {
	descriptors := cfg.ProviderDescriptors()
	providers := make([]webintel.FetchProvider, 0, len(descriptors))
	transformer := fetch.NewPageTransformer()
	for _, desc := range descriptors {
		if desc.Native {
			providers = append(providers, fetch.NewNativeProvider(desc, fetch.NativeConfig{UserAgent: cfg.Fetch.UserAgent}, transformer))
			continue
		}
		providers = append(providers, fetch.NewProxyProvider(desc, nil))
	}
	return providers
}

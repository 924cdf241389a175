// cmd/container.go
//
// Root composition root. Owns infrastructure (queue store, Redis, media
// store, alert transport) and wires the sync engine together. This is the
// only place that knows about every package.
package main

import (
	"context"
	"net/http"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/gardenledger/fieldsync/pkg/alertx"
	"github.com/gardenledger/fieldsync/pkg/alertx/alertxconsole"
	"github.com/gardenledger/fieldsync/pkg/alertx/alertxses"
	"github.com/gardenledger/fieldsync/pkg/api"
	"github.com/gardenledger/fieldsync/pkg/attestx"
	"github.com/gardenledger/fieldsync/pkg/config"
	"github.com/gardenledger/fieldsync/pkg/conflictx"
	"github.com/gardenledger/fieldsync/pkg/dedupx"
	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/fsx"
	"github.com/gardenledger/fieldsync/pkg/fsx/fsxlocal"
	"github.com/gardenledger/fieldsync/pkg/fsx/fsxs3"
	"github.com/gardenledger/fieldsync/pkg/ledgerx"
	"github.com/gardenledger/fieldsync/pkg/logx"
	"github.com/gardenledger/fieldsync/pkg/mediax"
	"github.com/gardenledger/fieldsync/pkg/queuex"
	"github.com/gardenledger/fieldsync/pkg/queuex/queuexmemory"
	"github.com/gardenledger/fieldsync/pkg/queuex/queuexpg"
	"github.com/gardenledger/fieldsync/pkg/queuex/queuexredis"
	"github.com/gardenledger/fieldsync/pkg/retryx"
	"github.com/gardenledger/fieldsync/pkg/storagex"
	"github.com/gardenledger/fieldsync/pkg/storagex/storagexredis"
	"github.com/gardenledger/fieldsync/pkg/syncx"
)

// Container holds shared infrastructure and the composed engine.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB       *sqlx.DB
	Redis    *redis.Client
	S3Client *s3.Client
	Media    fsx.PresignedStore

	// Engine
	Bus       *eventx.Bus
	Queue     *queuex.Queue
	Retry     *retryx.Manager
	Checker   attestx.Checker
	Dedup     *dedupx.Manager
	Resolver  *conflictx.Resolver
	Processor *ledgerx.Processor
	Sync      *syncx.Manager
	Storage   *storagex.Manager
	MediaMgr  *mediax.Manager
	Alerts    *alertx.Notifier

	// HTTP
	Tokens   *api.DeviceTokenService
	Handlers *api.Handlers
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("initializing application container")

	c := &Container{Config: cfg, Bus: eventx.NewBus()}

	c.initInfrastructure()
	c.initEngine()
	c.initHTTP()

	logx.Info("application container initialized")
	return c
}

func (c *Container) initInfrastructure() {
	cfg := c.Config

	switch cfg.Queue.Store {
	case "redis":
		c.initRedis()
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			logx.Fatalf("failed to connect to database: %v", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		c.DB = db
		logx.Info("database connected")
	case "memory":
		logx.Warn("using in-memory queue store, jobs will not survive restarts")
	default:
		logx.Fatalf("unknown QUEUE_STORE: %s (use 'redis', 'postgres' or 'memory')", cfg.Queue.Store)
	}

	c.initMediaStore()
}

func (c *Container) initRedis() {
	cfg := c.Config
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("failed to connect to Redis: %v", err)
	}
	logx.Info("redis connected")
}

func (c *Container) initMediaStore() {
	cfg := c.Config

	switch cfg.Media.Store {
	case "s3":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
			awsConfig.WithRegion(cfg.Media.S3Region))
		if err != nil {
			logx.Fatalf("unable to load AWS SDK config: %v", err)
		}
		c.S3Client = s3.NewFromConfig(awsCfg)
		c.Media = fsxs3.NewS3Store(c.S3Client, cfg.Media.S3Bucket, cfg.Media.S3Prefix)
		logx.Infof("s3 media store configured (bucket: %s, region: %s)",
			cfg.Media.S3Bucket, cfg.Media.S3Region)

	case "local":
		store, err := fsxlocal.NewLocalStore(cfg.Media.UploadDir)
		if err != nil {
			logx.Fatalf("failed to initialize local media store: %v", err)
		}
		c.Media = store
		logx.Infof("local media store configured (path: %s)", store.GetBasePath())

	default:
		logx.Fatalf("unknown MEDIA_STORE: %s (use 'local' or 's3')", cfg.Media.Store)
	}
}

func (c *Container) initEngine() {
	cfg := c.Config

	var store queuex.Store
	var cache storagex.CacheStore
	switch cfg.Queue.Store {
	case "redis":
		store = queuexredis.NewRedisStore(c.Redis)
		cache = storagexredis.NewCacheStore(c.Redis, "")
	case "postgres":
		store = queuexpg.NewPostgresStore(c.DB)
	default:
		store = queuexmemory.NewMemoryStore()
	}

	c.Queue = queuex.NewQueue(store, c.Bus, queuex.WithMaxAttempts(cfg.Queue.MaxAttempts))

	c.Retry = retryx.NewManager(retryx.Options{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         cfg.Retry.BaseDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		Jitter:            cfg.Retry.Jitter,
	})

	c.Checker = attestx.NewClient(cfg.Attest.BaseURL,
		&http.Client{Timeout: cfg.Attest.Timeout})

	dedupConfig := dedupx.DefaultConfig()
	if len(cfg.Dedup.IgnoreFields) > 0 {
		dedupConfig.IgnoreFields = cfg.Dedup.IgnoreFields
	}
	dedupConfig.IncludeAttachments = cfg.Dedup.IncludeAttachments
	c.Dedup = dedupx.NewManager(c.Checker, dedupConfig)

	c.Resolver = conflictx.NewResolver(c.Checker, c.Dedup, c.Queue, c.Bus)

	// The ledger signer is provisioned after device authentication; until
	// then every processing attempt reports the client as unavailable
	// without consuming retry budget.
	c.Processor = ledgerx.NewProcessor(c.Queue, nil,
		ledgerx.WithBatchWorkers(cfg.Sync.BatchWorkers))

	c.Sync = syncx.NewManager(c.Queue, c.Processor, c.Retry, c.Bus,
		syncx.WithOnlineDebounce(cfg.Sync.OnlineDebounce))

	policy := storagex.DefaultPolicy()
	policy.MaxAge = cfg.Storage.MaxAge
	policy.MaxItems = cfg.Storage.MaxItems
	policy.ThresholdPercentage = cfg.Storage.ThresholdPercentage
	c.Storage = storagex.NewManager(c.Queue, cache, c.Media, c.Bus,
		storagex.WithTotalBytes(cfg.Storage.TotalBytes),
		storagex.WithPolicy(policy))

	c.MediaMgr = mediax.NewManager(c.Media, mediax.WithExpiration(cfg.Media.URLExpiration))

	c.Alerts = alertx.NewNotifier(c.alertProvider(), c.Bus,
		alertx.WithMinSeverity(alertx.Severity(cfg.Alert.MinSeverity)))
	c.Alerts.WatchQueue(c.Queue)
}

func (c *Container) alertProvider() alertx.Provider {
	cfg := c.Config

	if cfg.Alert.Provider == "ses" && len(cfg.Alert.ToAddresses) > 0 {
		awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
			awsConfig.WithRegion(cfg.Media.S3Region))
		if err != nil {
			logx.Fatalf("unable to load AWS SDK config for SES: %v", err)
		}
		logx.Infof("ses alert provider configured (to: %v)", cfg.Alert.ToAddresses)
		return alertxses.NewSESProvider(ses.NewFromConfig(awsCfg),
			cfg.Alert.FromAddress, cfg.Alert.ToAddresses)
	}
	return alertxconsole.NewConsoleProvider()
}

func (c *Container) initHTTP() {
	cfg := c.Config

	if cfg.Auth.JWTSecret == "" {
		logx.Warn("AUTH_JWT_SECRET is empty, device tokens are forgeable")
	}
	c.Tokens = api.NewDeviceTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	c.Handlers = api.NewHandlers(c.Queue, c.Sync, c.Storage, c.Dedup, c.Resolver, c.MediaMgr)
}

// SetLedgerClient installs the signer once the device authenticates with
// its smart account.
func (c *Container) SetLedgerClient(client ledgerx.Client) {
	c.Processor.SetClient(client)
}

// StartBackgroundServices launches the periodic loops. They stop when ctx
// is cancelled.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("starting background services")

	go c.Sync.Run(ctx, c.Config.Sync.Interval)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runMaintenance(ctx)
			}
		}
	}()
}

// runMaintenance is the hourly housekeeping pass: stale media handles,
// storage pressure, operator alerts.
func (c *Container) runMaintenance(ctx context.Context) {
	c.MediaMgr.CleanupStale(c.Config.Media.StaleAge)

	if !c.Storage.ShouldPerformCleanup(ctx) {
		return
	}
	if _, err := c.Storage.PerformCleanup(ctx); err != nil {
		logx.WithError(err).Warn("scheduled storage cleanup failed")
	}

	if quota := c.Storage.Quota(ctx); quota.Percentage >= 90 {
		err := c.Alerts.Raise(ctx, alertx.Alert{
			Severity: alertx.SeverityCritical,
			Subject:  "local storage critically full",
			Body:     "usage remains above 90% after cleanup",
		})
		if err != nil {
			logx.WithError(err).Warn("failed to raise storage alert")
		}
	}
}

func (c *Container) Cleanup() {
	logx.Info("cleaning up resources")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("error closing database: %v", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("error closing Redis: %v", err)
		}
	}
	c.MediaMgr.CleanupAll()
}

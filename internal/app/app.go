// Package app wires the dispatcher from configuration. Both commands build
// on it.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/dispatcher"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/notify"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/platform/facebook"
	"github.com/maheshrc27/postflow/internal/platform/instagram"
	"github.com/maheshrc27/postflow/internal/platform/linkedin"
	"github.com/maheshrc27/postflow/internal/platform/tiktok"
	"github.com/maheshrc27/postflow/internal/platform/x"
	"github.com/maheshrc27/postflow/internal/platform/youtube"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const lockTTL = 2 * time.Minute

type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Dispatcher *dispatcher.Dispatcher
	RefreshJob *job.TokenRefreshJob
	// Queue and RedisOpt are set only when REDIS_URI is configured.
	Queue    *queue.Queue
	RedisOpt asynq.RedisConnOpt

	closers []func()
}

// New opens the database and builds every component. Close releases what it
// opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, func() { repository.Close(db) })

	cipher, err := utils.NewCipher(cfg.SecretKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("credential cipher: %w", err)
	}

	media, err := newStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	webhook := notify.NewWebhook(cfg.Notification, nil)
	var (
		notifier notify.Notifier = webhook
		locker   lock.Locker     = lock.NewLocal()
	)
	if cfg.RedisURI != "" {
		opts, err := redis.ParseURL(cfg.RedisURI)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URI: %w", err)
		}
		rdb := redis.NewClient(opts)
		locker = lock.NewRedis(rdb, lockTTL)

		a.RedisOpt = asynq.RedisClientOpt{
			Addr:      opts.Addr,
			Username:  opts.Username,
			Password:  opts.Password,
			DB:        opts.DB,
			TLSConfig: opts.TLSConfig,
		}
		client := asynq.NewClient(a.RedisOpt)
		a.Queue = queue.NewQueue(client, webhook)
		notifier = a.Queue
		a.closers = append(a.closers, func() {
			_ = client.Close()
			_ = rdb.Close()
		})
	}

	registry := NewRegistry(cfg)
	creds := service.NewCredentialService(repository.NewCredentialRepository(db), cipher)
	refresher := service.NewRefreshService(creds, registry, locker, notifier, cfg.Dispatch.RefreshLookahead)

	a.Dispatcher = dispatcher.New(
		repository.NewPostRepository(db),
		creds,
		refresher,
		registry,
		media,
		notifier,
		dispatcher.Options{
			Concurrency:  cfg.Dispatch.Concurrency,
			TaskTimeout:  cfg.Dispatch.TaskTimeout,
			ReleaseMedia: cfg.Dispatch.ReleaseMedia,
		},
	)
	a.RefreshJob = job.NewTokenRefreshJob(refresher)

	log.Info().Interface("platforms", registry.Enabled()).Bool("redis", cfg.RedisURI != "").Str("media", cfg.Media.Backend).Msg("dispatcher wired")
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NewRegistry registers the adapter and token strategy of every platform
// whose posting switch is on.
func NewRegistry(cfg *config.Config) *platform.Registry {
	r := platform.NewRegistry()
	if app := cfg.X(); app.Active {
		s := x.NewTokenStrategy(app, "", nil)
		r.Register(x.New(x.Options{}, s), s)
	}
	if app := cfg.LinkedIn(); app.Active {
		s := linkedin.NewTokenStrategy()
		r.Register(linkedin.New(linkedin.Options{}, s), s)
	}
	if app := cfg.Facebook(); app.Active {
		s := facebook.NewTokenStrategy(app, "", nil)
		r.Register(facebook.New(facebook.Options{}, s), s)
	}
	if app := cfg.Instagram(); app.Active {
		s := instagram.NewTokenStrategy("", nil)
		r.Register(instagram.New(instagram.Options{}, s), s)
	}
	if app := cfg.Tiktok(); app.Active {
		s := tiktok.NewTokenStrategy(app, "", nil)
		r.Register(tiktok.New(tiktok.Options{}, s), s)
	}
	if app := cfg.Youtube(); app.Active {
		s := youtube.NewTokenStrategy(app, "", nil)
		r.Register(youtube.New(youtube.Options{}, s), s)
	}
	return r
}

// openDB uses SQLite for "sqlite://<path>" URLs and PostgreSQL otherwise.
func openDB(url string) (*gorm.DB, error) {
	if path, ok := strings.CutPrefix(url, "sqlite://"); ok {
		db, err := repository.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := repository.AutoMigrate(db); err != nil {
			repository.Close(db)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return db, nil
	}
	return repository.Open(url)
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Media.Backend {
	case "r2":
		s, err := storage.NewR2(ctx, cfg.R2)
		if err != nil {
			return nil, fmt.Errorf("r2 media store: %w", err)
		}
		return s, nil
	default:
		return storage.NewLocal(cfg.Media.Root, cfg.Media.AppURL), nil
	}
}

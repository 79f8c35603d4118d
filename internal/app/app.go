// Package app wires the pipeline together and owns process lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"duyurubot/internal/config"
	"duyurubot/internal/notify"
	"duyurubot/internal/pipeline"
	"duyurubot/internal/scraper"
	"duyurubot/internal/storage"
	"duyurubot/internal/transport/telegram"
	"duyurubot/pkg/logx"
)

type App struct {
	log     logx.Logger
	manager *config.Manager
	store   *storage.Store
	adapter *telegram.Adapter
	pipe    *pipeline.Service

	updates chan *config.Config
	wg      sync.WaitGroup
}

// New loads the config and builds every component. Any error here is fatal:
// without credentials or storage the process cannot make progress.
func New(cfgPath string) (*App, error) {
	manager := config.NewManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	manager.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if err := seedSources(store, cfg); err != nil {
		_ = store.Close()
		return nil, err
	}

	adapter, err := buildAdapter(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pipe, err := buildPipeline(cfg, store, adapter, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		log:     log,
		manager: manager,
		store:   store,
		adapter: adapter,
		pipe:    pipe,
	}, nil
}

func buildAdapter(cfg *config.Config, store *storage.Store, log logx.Logger) (*telegram.Adapter, error) {
	pollTimeout, err := cfg.PollTimeoutOr(10 * time.Second)
	if err != nil {
		return nil, err
	}
	return telegram.New(telegram.Config{
		Token:       cfg.Token(),
		PollTimeout: pollTimeout,
	}, store, log.With(logx.String("comp", "telegram")))
}

func buildPipeline(cfg *config.Config, store *storage.Store, adapter *telegram.Adapter, log logx.Logger) (*pipeline.Service, error) {
	spec, err := pipeline.ParseSchedule(scheduleOr(cfg.Fetch.Schedule, "10m"))
	if err != nil {
		return nil, err
	}
	reqTimeout, err := config.ParseDurationField("fetch.request_timeout", cfg.Fetch.RequestTimeout)
	if err != nil {
		return nil, err
	}
	minDelay, err := config.ParseDurationField("fetch.min_delay", cfg.Fetch.MinDelay)
	if err != nil {
		return nil, err
	}
	maxDelay, err := config.ParseDurationField("fetch.max_delay", cfg.Fetch.MaxDelay)
	if err != nil {
		return nil, err
	}

	fetcher := scraper.New(scraper.Config{
		RequestTimeout: reqTimeout,
		MinDelay:       minDelay,
		MaxDelay:       maxDelay,
		UserAgents:     cfg.Fetch.UserAgents,
	}, log.With(logx.String("comp", "scraper")))

	notifier := notify.New(store, adapter, log.With(logx.String("comp", "notify")))
	return pipeline.New(spec, fetcher, store, notifier, log.With(logx.String("comp", "pipeline"))), nil
}

func scheduleOr(raw, def string) string {
	if raw == "" {
		return def
	}
	return raw
}

func seedSources(store *storage.Store, cfg *config.Config) error {
	ctx := context.Background()
	for _, s := range cfg.Sources {
		err := store.UpsertSource(ctx, storage.Source{
			ID:        s.ID,
			Name:      s.Name,
			ShortName: s.ShortName,
			URL:       s.URL,
		})
		if err != nil {
			return fmt.Errorf("seed source %s: %w", s.ShortName, err)
		}
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	if err := a.adapter.Start(ctx); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}
	a.pipe.Start(ctx)

	// Config watcher: republish on file change; new sources are seeded so the
	// next cycle picks them up without a restart.
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.manager.Watch(ctx); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()
	updates := a.manager.Subscribe(1)
	a.updates = updates
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				if err := seedSources(a.store, cfg); err != nil {
					a.log.Warn("source reseed failed", logx.Err(err))
				}
			}
		}
	}()

	// Best-effort; no-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.pipe.Stop()
	err := a.adapter.Stop(ctx)
	a.manager.Unsubscribe(a.updates)
	a.wg.Wait()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("stopped")
	_ = a.log.Close()
	return err
}

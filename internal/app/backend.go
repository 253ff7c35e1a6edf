// Package app wires configuration into a running backend: the KV store, the
// optional cache, event sinks, the workflow engine and the tool registry.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/events"
	"taskline/internal/migrate"
	"taskline/internal/store"
	"taskline/internal/tools"
)

// Backend holds everything a command needs to run tools.
type Backend struct {
	Config   *config.Config
	Logger   *slog.Logger
	KV       store.KV
	Events   events.Writer
	Registry *tools.Registry
	// Engine is the process-wide engine in shared mode; nil in per-request mode.
	Engine *engine.Engine

	closers []func()
}

// Open builds a Backend from cfg. Call Close when done.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{Config: cfg, Logger: logger}
	if err := b.openStore(ctx); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openEvents(); err != nil {
		b.Close()
		return nil, err
	}

	var source tools.Source
	switch cfg.Engine.Mode {
	case config.ModePerRequest:
		source = func(context.Context) (tools.Workflow, error) { return b.NewEngine(), nil }
	default:
		b.Engine = b.NewEngine()
		source = tools.Static(b.Engine)
	}
	reg, err := tools.NewRegistry(source)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Registry = reg
	logger.DebugContext(ctx, "backend ready", "driver", cfg.Store.Driver, "mode", cfg.Engine.Mode, "cache", cfg.Cache.Enabled)
	return b, nil
}

// NewEngine returns a fresh engine over the backend's store. It loads the
// document on first use.
func (b *Backend) NewEngine() *engine.Engine {
	e := engine.New(store.NewDocuments(b.KV), b.Events, b.Logger)
	e.Key = b.Config.Store.Key
	return e
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func (b *Backend) onClose(fn func()) {
	b.closers = append(b.closers, fn)
}

func (b *Backend) openStore(ctx context.Context) error {
	cfg := b.Config.Store
	var kv store.KV
	switch cfg.Driver {
	case config.DriverMemory:
		kv = store.NewMemory()
	case config.DriverSQLite:
		conn, err := db.Open(db.Config{Workspace: cfg.SQLite.Workspace})
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		b.onClose(func() { conn.Close() })
		if err := migrate.Migrate(ctx, conn); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		kv = store.NewSQLite(conn)
		b.Logger.DebugContext(ctx, "sqlite store opened", "path", db.Path(cfg.SQLite.Workspace))
	case config.DriverPostgres:
		if err := migrate.MigratePostgres(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		pool, err := db.NewPool(ctx, db.PostgresConfig{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		b.onClose(pool.Close)
		kv = store.NewPostgres(pool)
	case config.DriverNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("taskline-store"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		b.onClose(nc.Close)
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("jetstream: %w", err)
		}
		bucket, err := store.OpenNATSBucket(ctx, js, cfg.NATS.Bucket)
		if err != nil {
			return err
		}
		kv = bucket
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if b.Config.Cache.Enabled {
		cached, err := store.NewCached(kv, b.Config.Cache.MaxCostBytes, b.Config.Cache.TTL)
		if err != nil {
			return fmt.Errorf("create cache: %w", err)
		}
		b.onClose(cached.Close)
		kv = cached
	}
	b.KV = kv
	return nil
}

func (b *Backend) openEvents() error {
	sinks := []events.Sink{events.LogSink{Logger: b.Logger}}
	if url := b.Config.Events.NATSURL; url != "" {
		nc, err := nats.Connect(url, nats.Name("taskline-events"))
		if err != nil {
			return fmt.Errorf("connect nats events: %w", err)
		}
		b.onClose(func() {
			_ = nc.Drain()
		})
		sinks = append(sinks, events.NATSSink{Conn: nc, Subject: b.Config.Events.NATSSubject})
	}
	for _, hook := range b.Config.Events.Webhooks {
		if !hook.Active() {
			continue
		}
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		sinks = append(sinks, events.NewWebhookSink(hook.URL, hook.Secret, hook.Events, timeout))
	}
	b.Events = events.Writer{Sinks: sinks}
	return nil
}

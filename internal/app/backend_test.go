package app

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/logger"
	"taskline/internal/tools"
)

func newTestBackend(t *testing.T, mutate func(*config.Config)) *Backend {
	t.Helper()
	cfg := config.Default()
	cfg.Store.SQLite.Workspace = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	b, err := Open(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func plan(t *testing.T, reg *tools.Registry, title string) engine.PlanResult {
	t.Helper()
	params := `{"originalRequest":"` + title + `","tasks":[{"title":"A","description":"a"}]}`
	out, err := reg.Call(context.Background(), tools.RequestPlanning, json.RawMessage(params))
	require.NoError(t, err)
	return out.(engine.PlanResult)
}

func TestSharedModeUsesOneEngine(t *testing.T) {
	b := newTestBackend(t, func(c *config.Config) { c.Store.Driver = config.DriverMemory })
	require.NotNil(t, b.Engine)

	require.Equal(t, "req-1", plan(t, b.Registry, "one").RequestID)
	require.Equal(t, "req-2", plan(t, b.Registry, "two").RequestID)

	doc, err := b.Engine.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Requests, 2)
}

func TestSQLitePersistsAcrossBackends(t *testing.T) {
	workspace := t.TempDir()
	open := func() *Backend {
		cfg := config.Default()
		cfg.Store.SQLite.Workspace = workspace
		b, err := Open(context.Background(), cfg, logger.Discard())
		require.NoError(t, err)
		return b
	}

	first := open()
	require.Equal(t, "req-1", plan(t, first.Registry, "persisted").RequestID)
	first.Close()

	_, err := os.Stat(db.Path(workspace))
	require.NoError(t, err)

	second := open()
	defer second.Close()
	require.Equal(t, "req-2", plan(t, second.Registry, "after restart").RequestID)

	out, err := second.Registry.Call(context.Background(), tools.OpenTaskDetails, json.RawMessage(`{"taskId":"task-1"}`))
	require.NoError(t, err)
	require.Equal(t, "A", out.(engine.TaskDetailsResult).Task.Title)
}

func TestPerRequestModeSeesOtherWriters(t *testing.T) {
	b := newTestBackend(t, func(c *config.Config) {
		c.Store.Driver = config.DriverMemory
		c.Engine.Mode = config.ModePerRequest
	})
	require.Nil(t, b.Engine)

	plan(t, b.Registry, "via registry")

	other := b.NewEngine()
	_, err := other.PlanRequest(context.Background(), "side channel", []domain.TaskInput{{Title: "B", Description: "b"}}, "")
	require.NoError(t, err)

	out, err := b.Registry.Call(context.Background(), tools.ListRequests, nil)
	require.NoError(t, err)
	require.Len(t, out.(engine.RequestListResult).Requests, 2)
}

func TestCustomDocumentKey(t *testing.T) {
	b := newTestBackend(t, func(c *config.Config) {
		c.Store.Driver = config.DriverMemory
		c.Store.Key = "tenant-a"
	})
	plan(t, b.Registry, "keyed")

	_, found, err := b.KV.Get(context.Background(), "tenant-a")
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = b.KV.Get(context.Background(), domain.DocumentKey)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCacheWrapsStore(t *testing.T) {
	b := newTestBackend(t, func(c *config.Config) {
		c.Cache.Enabled = true
	})
	plan(t, b.Registry, "cached")

	fresh := b.NewEngine()
	doc, err := fresh.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Requests, 1)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Mode = "bogus"
	_, err := Open(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/swipe-sync/pkg/config"
	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/state"
	"github.com/jdziat/swipe-sync/pkg/storage"
)

type fakeAPI struct {
	healthy      atomic.Bool
	applications atomic.Int32
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{}
	f.healthy.Store(true)

	r := chi.NewRouter()
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, map[string]any{
			"items":      []core.Job{{ID: "J1", Title: "Backend"}, {ID: "J2", Title: "Frontend"}},
			"pagination": map[string]any{"hasMore": false, "total": 2},
		})
	})
	r.Post("/api/applications", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JobID string `json:"jobId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.applications.Add(1)
		writeBody(w, core.Record{ID: "app-1", JobID: body.JobID, Status: "applied"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(apiURL string) *config.Config {
	cfg := config.Default()
	cfg.APIURL = apiURL
	cfg.Storage.Driver = config.DriverMemory
	return cfg
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, closer, err := OpenStorage(ctx, config.StorageConfig{Driver: config.DriverMemory})
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.IsType(t, &storage.MemoryStorage{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "swipesync.db")
		s, closer, err := OpenStorage(ctx, config.StorageConfig{Driver: config.DriverSQLite, Path: path})
		require.NoError(t, err)
		defer closer.Close()
		require.NoError(t, s.Set(ctx, "k", []byte("v")))
	})

	t.Run("badger", func(t *testing.T) {
		s, closer, err := OpenStorage(ctx, config.StorageConfig{Driver: config.DriverBadger, Path: t.TempDir()})
		require.NoError(t, err)
		defer closer.Close()
		require.NoError(t, s.Set(ctx, "k", []byte("v")))
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := OpenStorage(ctx, config.StorageConfig{Driver: "etcd"})
		assert.ErrorContains(t, err, "unknown storage driver")
	})
}

func TestNew_InvalidBackendURL(t *testing.T) {
	cfg := testConfig("ftp://example.com")
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestApp_SwipeIsDeliveredAndConfirmed(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeAPI(t)

	a, err := New(ctx, testConfig(srv.URL))
	require.NoError(t, err)
	a.Start(ctx)
	defer a.Close()

	require.NoError(t, a.Controller.LoadJobs(ctx))
	job, err := a.Controller.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, "J1", job.ID)

	a.Queue.Wait()

	assert.Equal(t, int32(1), f.applications.Load())
	assert.Equal(t, 0, a.Queue.Len())

	snap := a.Store.Snapshot()
	rec, ok := snap.Find(state.CollectionApplications, "J1")
	require.True(t, ok)
	assert.Equal(t, "app-1", rec.ID)
	assert.False(t, rec.PendingSync)
	assert.Equal(t, 1, snap.CurrentIndex)
}

func TestApp_OfflineActionsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeAPI(t)
	shared := storage.NewMemoryStorage()

	first, err := New(ctx, testConfig(srv.URL), WithStorage(shared))
	require.NoError(t, err)
	first.Start(ctx)
	require.NoError(t, first.Controller.LoadJobs(ctx))

	first.Monitor.Set(false)
	_, err = first.Controller.Accept(ctx)
	require.NoError(t, err)
	first.Queue.Wait()
	assert.Equal(t, 1, first.Queue.Len())
	require.NoError(t, first.Close())

	second, err := New(ctx, testConfig(srv.URL), WithStorage(shared))
	require.NoError(t, err)
	second.Start(ctx)
	defer second.Close()
	second.Queue.Wait()

	assert.Equal(t, int32(1), f.applications.Load())
	assert.Equal(t, 0, second.Queue.Len())
	rec, ok := second.Store.Snapshot().Find(state.CollectionApplications, "J1")
	require.True(t, ok)
	assert.Equal(t, "app-1", rec.ID)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	l := NewLogger(cfg, &buf)
	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

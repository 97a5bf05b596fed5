package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/state"
	"github.com/jdziat/swipe-sync/pkg/storage"
)

// fakeBackend is an idempotent in-memory backend.
type fakeBackend struct {
	mu         sync.Mutex
	failures   int
	seenKeys   map[string]core.Record
	keys       []string
	calls      int
	skipped    []core.Record
	lastAuth   string
	lastReason string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{seenKeys: make(map[string]core.Record)}
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/applications", f.create("applied"))
	r.Post("/api/skipped", f.create("skipped"))
	r.Post("/api/reported", f.create("reported"))
	r.Post("/api/saved/toggle", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/jobs/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/api/skipped/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not skipped"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/rollback", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	r.Get("/api/skipped", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		f.mu.Lock()
		all := f.skipped
		f.mu.Unlock()

		start := (page - 1) * limit
		end := start + limit
		if start > len(all) {
			start = len(all)
		}
		if end > len(all) {
			end = len(all)
		}
		writeJSONBody(w, listResponse[core.Record]{
			Items:      all[start:end],
			Pagination: Pagination{HasMore: end < len(all), Total: len(all)},
		})
	})
	r.Get("/api/saved", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func (f *fakeBackend) create(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.calls++
		f.lastAuth = r.Header.Get("Authorization")
		key := r.Header.Get(IdempotencyHeader)
		f.keys = append(f.keys, key)

		if f.failures > 0 {
			f.failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"jobId is required"}`))
			return
		}
		f.lastReason = req.Reason

		if rec, ok := f.seenKeys[key]; ok {
			writeJSONBody(w, rec)
			return
		}
		rec := core.Record{ID: "srv-" + req.JobID, JobID: req.JobID, Status: status, Reason: req.Reason}
		f.seenKeys[key] = rec
		w.WriteHeader(http.StatusCreated)
		writeJSONBody(w, rec)
	}
}

func writeJSONBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeBackend, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	_, err = New("://bad")
	assert.Error(t, err)
}

func TestClient_AcceptSendsIdempotencyKey(t *testing.T) {
	f := newFakeBackend()
	c := newTestClient(t, f, WithToken("secret"))

	rec, err := c.Accept(context.Background(), core.Payload{JobID: "J9"}, core.DeliveryOptions{IdempotencyKey: "accept:J9:1:abc"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "srv-J9", rec.ID)
	assert.Equal(t, "applied", rec.Status)
	assert.Equal(t, []string{"accept:J9:1:abc"}, f.keys)
	assert.Equal(t, "Bearer secret", f.lastAuth)
}

func TestClient_ReportSendsReason(t *testing.T) {
	f := newFakeBackend()
	c := newTestClient(t, f)

	rec, err := c.Report(context.Background(), core.Payload{JobID: "J1", Reason: "spam"}, core.DeliveryOptions{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "spam", rec.Reason)
	assert.Equal(t, "spam", f.lastReason)
}

func TestClient_NoContentReturnsNilRecord(t *testing.T) {
	c := newTestClient(t, newFakeBackend())
	ctx := context.Background()

	rec, err := c.ToggleSave(ctx, core.Payload{JobID: "J1"}, core.DeliveryOptions{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = c.Reject(ctx, core.Payload{JobID: "J1"}, core.DeliveryOptions{IdempotencyKey: "k2"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = c.Unskip(ctx, core.Payload{JobID: "J1"}, core.DeliveryOptions{IdempotencyKey: "k3"})
	require.NoError(t, err)
}

func TestClient_ErrorClassification(t *testing.T) {
	f := newFakeBackend()
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.Unskip(ctx, core.Payload{JobID: "missing"}, core.DeliveryOptions{IdempotencyKey: "k"})
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "not skipped")

	f.failures = 1
	_, err = c.Skip(ctx, core.Payload{JobID: "J1"}, core.DeliveryOptions{IdempotencyKey: "k"})
	require.Error(t, err)
	assert.False(t, core.IsPermanent(err))
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))

	_, err = c.Rollback(ctx, core.Payload{JobID: "J1", Action: core.DecisionAccepted}, core.DeliveryOptions{IdempotencyKey: "k"})
	require.Error(t, err)
	assert.False(t, core.IsPermanent(err))
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	var ra *core.RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, 3*time.Second, ra.Delay)
}

func TestClassify(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "3")
	err := classify(&StatusError{Code: http.StatusTooManyRequests}, h)

	var ra *core.RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, 3*time.Second, ra.Delay)

	assert.False(t, core.IsPermanent(classify(&StatusError{Code: http.StatusRequestTimeout}, http.Header{})))
	assert.False(t, core.IsPermanent(classify(&StatusError{Code: http.StatusBadGateway}, http.Header{})))
	assert.True(t, core.IsPermanent(classify(&StatusError{Code: http.StatusUnauthorized}, http.Header{})))
	assert.True(t, core.IsPermanent(classify(&StatusError{Code: http.StatusConflict}, http.Header{})))
}

func TestRetryAfter(t *testing.T) {
	d, ok := retryAfter("10")
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, d)

	_, ok = retryAfter("")
	assert.False(t, ok)
	_, ok = retryAfter("-1")
	assert.False(t, ok)
	_, ok = retryAfter("soon")
	assert.False(t, ok)

	d, ok = retryAfter(time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)

	_, err = c.Accept(context.Background(), core.Payload{JobID: "J1"}, core.DeliveryOptions{IdempotencyKey: "k"})
	require.Error(t, err)
	assert.False(t, core.IsPermanent(err))
	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_Ping(t *testing.T) {
	c := newTestClient(t, newFakeBackend())
	assert.NoError(t, c.Ping(context.Background()))
}

func TestClient_ListCollectionPaginates(t *testing.T) {
	f := newFakeBackend()
	for i := 0; i < DefaultPageSize+7; i++ {
		id := strconv.Itoa(i)
		f.skipped = append(f.skipped, core.Record{ID: "srv-" + id, JobID: "J" + id})
	}
	c := newTestClient(t, f)
	ctx := context.Background()

	all, err := c.ListCollection(ctx, state.CollectionSkipped)
	require.NoError(t, err)
	assert.Len(t, all, DefaultPageSize+7)

	page, p, err := c.ListRecords(ctx, state.CollectionSkipped, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page, 10)
	assert.True(t, p.HasMore)
	assert.Equal(t, DefaultPageSize+7, p.Total)

	_, err = c.ListCollection(ctx, state.CollectionSaved)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))

	_, err = c.ListCollection(ctx, state.Collection("bogus"))
	assert.Error(t, err)
}

func TestClient_RateLimit(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), WithRateLimit(rate.Limit(1), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Ping(ctx))
	assert.Error(t, c.Ping(ctx))
}

func TestClient_QueueRetriesWithSameKey(t *testing.T) {
	f := newFakeBackend()
	f.failures = 2
	c := newTestClient(t, f)
	ctx := context.Background()

	q := queue.New(storage.NewMemoryStorage(),
		queue.AutoProcess(false),
		queue.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	q.RegisterAll(c.Transports())

	var got *core.Record
	_, err := q.Enqueue(ctx, core.ActionAccept, core.Payload{JobID: "J9"},
		queue.OnSuccess(func(a *core.QueuedAction, r *core.Record) { got = r }))
	require.NoError(t, err)
	q.Process(ctx)

	require.NotNil(t, got)
	assert.Equal(t, "srv-J9", got.ID)
	require.Len(t, f.keys, 3)
	assert.Equal(t, f.keys[0], f.keys[2])
	for _, typ := range core.ActionTypes {
		assert.True(t, q.HasTransport(typ), typ)
	}
}

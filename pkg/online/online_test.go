package online

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/schedule"
	"github.com/jdziat/swipe-sync/pkg/storage"
)

type fakeDriver struct {
	mu       sync.Mutex
	triggers int
	events   []core.Event
}

func (d *fakeDriver) Trigger() {
	d.mu.Lock()
	d.triggers++
	d.mu.Unlock()
}

func (d *fakeDriver) Emit(e core.Event) {
	d.mu.Lock()
	d.events = append(d.events, e)
	d.mu.Unlock()
}

func TestMonitor_SetNotifiesOnTransitionOnly(t *testing.T) {
	m := New()
	assert.True(t, m.Online())

	var seen []bool
	unsubscribe := m.OnChange(func(online bool) { seen = append(seen, online) })

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)
	assert.Equal(t, []bool{false, true}, seen)

	unsubscribe()
	m.Set(false)
	assert.Len(t, seen, 2)
}

func TestMonitor_Check(t *testing.T) {
	ctx := context.Background()
	var probeErr error
	m := New(StartOffline(), WithProbe(func(ctx context.Context) error { return probeErr }))
	assert.False(t, m.Online())

	assert.True(t, m.Check(ctx))
	assert.True(t, m.Online())

	probeErr = errors.New("dial tcp: connection refused")
	assert.False(t, m.Check(ctx))
	assert.False(t, m.Online())
}

func TestMonitor_CheckWithoutProbe(t *testing.T) {
	m := New(StartOffline())
	assert.False(t, m.Check(context.Background()))
}

func TestMonitor_CancelledProbeKeepsState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(WithProbe(func(ctx context.Context) error { return ctx.Err() }))
	assert.True(t, m.Check(ctx))
	assert.True(t, m.Online())
}

func TestMonitor_DriveTriggersOnReconnect(t *testing.T) {
	m := New()
	d := &fakeDriver{}
	stop := m.Drive(d)

	m.Set(false)
	m.Set(true)

	assert.Equal(t, 1, d.triggers)
	require.Len(t, d.events, 2)
	assert.False(t, d.events[0].(*core.ConnectivityChanged).Online)
	assert.True(t, d.events[1].(*core.ConnectivityChanged).Online)

	stop()
	m.Set(false)
	m.Set(true)
	assert.Equal(t, 1, d.triggers)
}

func TestMonitor_RunFlushesWhileOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(WithSchedule(schedule.Every(5 * time.Millisecond)))
	d := &fakeDriver{}
	m.Drive(d)

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.triggers >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestMonitor_GatesQueue(t *testing.T) {
	ctx := context.Background()
	m := New(StartOffline())

	q := queue.New(storage.NewMemoryStorage(),
		queue.WithConnectivity(m.Online),
		queue.WithContext(ctx),
	)
	m.Drive(q)

	delivered := make(chan string, 1)
	q.Register(core.ActionSkip, func(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
		delivered <- p.JobID
		return nil, nil
	})

	_, err := q.Enqueue(ctx, core.ActionSkip, core.Payload{JobID: "J1"})
	require.NoError(t, err)
	q.Wait()
	assert.Equal(t, 1, q.Len())

	m.Set(true)
	select {
	case id := <-delivered:
		assert.Equal(t, "J1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("queue was not drained after reconnect")
	}
	q.Wait()
	assert.Equal(t, 0, q.Len())
}

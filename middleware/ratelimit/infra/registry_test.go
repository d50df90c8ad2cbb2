package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShared_ReturnsSameInstance(t *testing.T) {
	t.Cleanup(DestroyAll)

	a := SharedStore()
	b := SharedStore()
	assert.Same(t, a, b)

	a.Increment("k", time.Minute)
	assert.Equal(t, 1, b.Get("k", time.Minute).Count())
}

func TestShared_FactoryRunsOnce(t *testing.T) {
	t.Cleanup(DestroyAll)

	calls := 0
	factory := func() *Monitor { calls++; return NewMonitor() }
	Shared("test.monitor", factory)
	Shared("test.monitor", factory)
	assert.Equal(t, 1, calls)
}

func TestDestroy_RecreatesOnNextAccess(t *testing.T) {
	t.Cleanup(DestroyAll)

	first := SharedEventLog()
	Destroy(SharedEventLogKey)
	assert.NotSame(t, first, SharedEventLog())

	m := SharedMonitor()
	DestroyAll()
	assert.NotSame(t, m, SharedMonitor())
}

func TestDestroy_StopsMonitorJanitor(t *testing.T) {
	t.Cleanup(DestroyAll)

	clock := newTestClock()
	m := Shared(SharedMonitorKey, func() *Monitor {
		return NewMonitor(WithMonitorClock(clock.Now), WithCounterRetention(time.Hour))
	})
	m.StartJanitor(context.Background(), time.Millisecond)

	Destroy(SharedMonitorKey)

	m.RecordAttempt(attemptAt("1.1.1.1", "/a", false, clock.Now().Add(-2*time.Hour)))
	time.Sleep(20 * time.Millisecond)

	_, ok := m.Counter("1.1.1.1", "/a")
	assert.True(t, ok)
}

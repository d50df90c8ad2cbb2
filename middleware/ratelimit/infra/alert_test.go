package infra

import (
	"testing"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
)

func TestThrottledAlert_SuppressesAfterBurst(t *testing.T) {
	calls := 0
	a := NewThrottledAlert(func(domain.SecurityEvent) { calls++ }, time.Hour, 2, nil)

	l := NewEventLog(WithAlertHook(a.Hook()))
	for i := 0; i < 5; i++ {
		l.Log(event("1.1.1.1", domain.SeverityCritical))
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(3), a.Suppressed())
	assert.Equal(t, 5, l.Len(), "suppressed alerts are still logged")
}

func TestThrottledAlert_ZeroIntervalNeverThrottles(t *testing.T) {
	calls := 0
	a := NewThrottledAlert(func(domain.SecurityEvent) { calls++ }, 0, 1, nil)
	for i := 0; i < 10; i++ {
		a.Fire(event("1.1.1.1", domain.SeverityCritical))
	}
	assert.Equal(t, 10, calls)
	assert.Zero(t, a.Suppressed())
}

func TestThrottledAlert_NilHookDoesNotPanic(t *testing.T) {
	a := NewThrottledAlert(nil, time.Minute, 1, nil)
	assert.NotPanics(t, func() { a.Fire(event("1.1.1.1", domain.SeverityCritical)) })
}

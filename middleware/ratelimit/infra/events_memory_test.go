package infra

import (
	"fmt"
	"testing"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(addr string, sev domain.Severity) domain.SecurityEvent {
	return domain.SecurityEvent{Type: domain.EventSuspiciousRequest, Severity: sev, Address: addr}
}

func TestEventLog_LogFillsMissingFields(t *testing.T) {
	clock := newTestClock()
	l := NewEventLog(WithEventClock(clock.Now), WithEnvironment("production"))

	ev := l.Log(domain.SecurityEvent{Type: domain.EventAuthFailure, Address: "1.1.1.1"})

	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err)
	assert.Equal(t, clock.Now(), ev.Timestamp)
	assert.Equal(t, "production", ev.Environment)
	assert.Equal(t, domain.SeverityLow, ev.Severity)
	assert.Equal(t, 1, l.Len())
}

func TestEventLog_DefaultsToDevelopment(t *testing.T) {
	ev := NewEventLog().Log(event("1.1.1.1", domain.SeverityLow))
	assert.Equal(t, "development", ev.Environment)
}

func TestEventLog_CapKeepsMostRecent(t *testing.T) {
	l := NewEventLog()
	for i := 0; i < 1500; i++ {
		l.Log(domain.SecurityEvent{Type: domain.EventSuspiciousRequest, Details: map[string]any{"n": i}})
	}

	assert.Equal(t, DefaultEventCap, l.Len())
	recent := l.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, 1499, recent[0].Details["n"])

	all := l.Recent(0)
	require.Len(t, all, DefaultEventCap)
	assert.Equal(t, 500, all[len(all)-1].Details["n"])
}

func TestEventLog_CriticalGoesToAlertHook(t *testing.T) {
	var got []domain.SecurityEvent
	l := NewEventLog(WithAlertHook(func(ev domain.SecurityEvent) { got = append(got, ev) }))

	l.Log(event("1.1.1.1", domain.SeverityHigh))
	l.Log(event("1.1.1.1", domain.SeverityCritical))

	require.Len(t, got, 1)
	assert.Equal(t, domain.SeverityCritical, got[0].Severity)
	assert.NotEmpty(t, got[0].ID)
}

func TestEventLog_IsSuspicious(t *testing.T) {
	clock := newTestClock()
	l := NewEventLog(WithEventClock(clock.Now))

	for i := 0; i < 5; i++ {
		l.Log(event("1.1.1.1", domain.SeverityHigh))
	}
	assert.False(t, l.IsSuspicious("1.1.1.1"), "5 high is not enough")
	l.Log(event("1.1.1.1", domain.SeverityHigh))
	assert.True(t, l.IsSuspicious("1.1.1.1"))

	l.Log(event("2.2.2.2", domain.SeverityCritical))
	assert.True(t, l.IsSuspicious("2.2.2.2"), "any critical")

	for i := 0; i < 11; i++ {
		l.Log(event("3.3.3.3", domain.SeverityLow))
	}
	assert.True(t, l.IsSuspicious("3.3.3.3"), "more than 10 events")

	clock.Advance(time.Hour)
	assert.False(t, l.IsSuspicious("1.1.1.1"), "only the last hour counts")
	assert.False(t, l.IsSuspicious("2.2.2.2"))
}

func TestEventLog_Metrics(t *testing.T) {
	l := NewEventLog()
	for i := 0; i < 25; i++ {
		l.Log(event(fmt.Sprintf("10.0.0.%d", i), domain.SeverityHigh))
	}
	l.Log(domain.SecurityEvent{Type: domain.EventCSPViolation, Severity: domain.SeverityLow, Address: "8.8.8.8"})

	m := l.Metrics()
	assert.Equal(t, 26, m.TotalEvents)
	assert.Equal(t, 25, m.EventsByType[domain.EventSuspiciousRequest])
	assert.Equal(t, 1, m.EventsByType[domain.EventCSPViolation])
	assert.Equal(t, 25, m.EventsBySeverity[domain.SeverityHigh])
	assert.Len(t, m.RecentEvents, 10)
	assert.Equal(t, domain.EventCSPViolation, m.RecentEvents[0].Type)
	assert.Len(t, m.SuspiciousAddresses, 20)
	assert.NotContains(t, m.SuspiciousAddresses, "8.8.8.8")
}

func TestEventLog_Clear(t *testing.T) {
	l := NewEventLog()
	l.Log(event("1.1.1.1", domain.SeverityLow))
	l.Clear()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Recent(0))
}

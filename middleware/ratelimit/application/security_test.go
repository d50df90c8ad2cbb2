package application

import (
	"errors"
	"testing"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"jane.doe@example.com": "j***e@example.com",
		"ab@example.com":       "a***b@example.com",
		"a@example.com":        "a***@example.com",
		"@example.com":         "***@example.com",
		"not-an-email":         "***",
		"josé@exemplo.com.br":  "j***é@exemplo.com.br",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}

func TestSecurityEvents_NilLogIsNoop(t *testing.T) {
	var s SecurityEvents
	ev := s.AuthFailure(desc("10.0.0.1:1"), "jane.doe@example.com", "bad password")
	assert.Equal(t, domain.EventAuthFailure, ev.Type)
}

func TestSecurityEvents_AuthFailureMasksEmail(t *testing.T) {
	sink := &eventSink{}
	s := SecurityEvents{Log: sink}

	s.AuthFailure(desc("10.0.0.1:1"), "jane.doe@example.com", "bad password")

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, domain.SeverityMedium, ev.Severity)
	assert.Equal(t, "j***e@example.com", ev.Details["email"])
	assert.Equal(t, "bad password", ev.Details["reason"])
	assert.Equal(t, "10.0.0.1", ev.Address)
	assert.Equal(t, "test-agent", ev.ClientIdentity)
	assert.Equal(t, "/page", ev.URL)
	assert.Equal(t, "GET", ev.Method)
}

func TestSecurityEvents_Wrappers(t *testing.T) {
	sink := &eventSink{}
	s := SecurityEvents{Log: sink}
	d := desc("10.0.0.1:1")

	s.RateLimitViolation(d, "10.0.0.1", domain.Policy{Name: domain.PolicyAPI, Window: 15 * time.Minute, MaxRequests: 100}, 101)
	s.SuspiciousRequest(d, "sql injection probe", "", map[string]any{"param": "id"})
	s.SuspiciousRequest(d, "scanner", domain.SeverityCritical, nil)
	s.CSPViolation(d, map[string]any{"blocked-uri": "inline"})
	s.MiddlewareError(d, errors.New("boom"))

	require.Len(t, sink.events, 5)

	assert.Equal(t, domain.EventRateLimitViolation, sink.events[0].Type)
	assert.Equal(t, domain.SeverityHigh, sink.events[0].Severity)
	assert.Equal(t, "api", sink.events[0].Details["policy"])
	assert.Equal(t, int64(900_000), sink.events[0].Details["windowMs"])
	assert.Equal(t, 101, sink.events[0].Details["attempts"])

	assert.Equal(t, domain.SeverityMedium, sink.events[1].Severity, "default severity")
	assert.Equal(t, "id", sink.events[1].Details["param"])
	assert.Equal(t, "sql injection probe", sink.events[1].Details["reason"])

	assert.Equal(t, domain.SeverityCritical, sink.events[2].Severity)

	assert.Equal(t, domain.EventCSPViolation, sink.events[3].Type)
	assert.Equal(t, domain.SeverityLow, sink.events[3].Severity)
	assert.Equal(t, "inline", sink.events[3].Details["blocked-uri"])

	assert.Equal(t, domain.EventMiddlewareError, sink.events[4].Type)
	assert.Equal(t, "boom", sink.events[4].Details["error"])
}

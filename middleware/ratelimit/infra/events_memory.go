package infra

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"github.com/google/uuid"
)

const (
	// DefaultEventCap é o tamanho do ring buffer de eventos.
	DefaultEventCap = 1000

	suspiciousLookback    = time.Hour
	suspiciousMaxEvents   = 10
	suspiciousMaxHigh     = 5
	recentEventsInMetric  = 10
	maxSuspiciousInMetric = 20
)

// EventLog é o log estruturado de eventos de segurança do processo.
//
// Retém os eventos mais recentes num ring buffer e escreve cada um no slog.
// Eventos críticos seguem também para o AlertHook.
type EventLog struct {
	mu     sync.Mutex
	events *Ring[domain.SecurityEvent]

	env    string
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
	alert  domain.AlertHook
}

type EventLogOption func(*EventLog)

func WithEventCap(n int) EventLogOption {
	return func(l *EventLog) { l.events = NewRing[domain.SecurityEvent](n) }
}

func WithEnvironment(env string) EventLogOption {
	return func(l *EventLog) { l.env = env }
}

func WithEventClock(now func() time.Time) EventLogOption {
	return func(l *EventLog) { l.now = now }
}

func WithEventLogger(lg *slog.Logger) EventLogOption {
	return func(l *EventLog) { l.logger = lg }
}

// WithAlertHook define o caminho de escalonamento dos eventos críticos.
func WithAlertHook(h domain.AlertHook) EventLogOption {
	return func(l *EventLog) { l.alert = h }
}

func NewEventLog(opts ...EventLogOption) *EventLog {
	l := &EventLog{
		events: NewRing[domain.SecurityEvent](DefaultEventCap),
		env:    "development",
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log completa id/timestamp/environment, guarda e escreve o evento.
func (l *EventLog) Log(ev domain.SecurityEvent) domain.SecurityEvent {
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	if ev.Environment == "" {
		ev.Environment = l.env
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityLow
	}

	l.mu.Lock()
	l.events.Push(ev)
	alert := l.alert
	l.mu.Unlock()

	l.logger.Log(context.Background(), levelFor(ev.Severity), "security event",
		"id", ev.ID,
		"type", ev.Type,
		"severity", ev.Severity,
		"ip", ev.Address,
		"method", ev.Method,
		"url", ev.URL,
		"details", ev.Details,
	)

	if ev.Severity == domain.SeverityCritical {
		if alert != nil {
			alert(ev)
		} else {
			l.logger.Error("critical security event without alert hook", "id", ev.ID, "type", ev.Type, "ip", ev.Address)
		}
	}
	return ev
}

func levelFor(s domain.Severity) slog.Level {
	switch s {
	case domain.SeverityCritical:
		return slog.LevelError
	case domain.SeverityHigh, domain.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// IsSuspicious considera a última hora: mais de 10 eventos, qualquer crítico
// ou mais de 5 high.
func (l *EventLog) IsSuspicious(address string) bool {
	cutoff := l.now().Add(-suspiciousLookback)

	l.mu.Lock()
	defer l.mu.Unlock()

	total, high, critical := 0, 0, 0
	l.events.NewestFirst(func(ev domain.SecurityEvent) bool {
		if ev.Address != address || !ev.Timestamp.After(cutoff) {
			return true
		}
		total++
		switch ev.Severity {
		case domain.SeverityCritical:
			critical++
		case domain.SeverityHigh:
			high++
		}
		return true
	})
	return total > suspiciousMaxEvents || critical > 0 || high > suspiciousMaxHigh
}

// Metrics agrega o conteúdo atual do ring buffer.
func (l *EventLog) Metrics() domain.SecurityMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := domain.SecurityMetrics{
		TotalEvents:         l.events.Len(),
		EventsByType:        make(map[domain.EventType]int),
		EventsBySeverity:    make(map[domain.Severity]int),
		RecentEvents:        make([]domain.SecurityEvent, 0, recentEventsInMetric),
		SuspiciousAddresses: make([]string, 0),
	}
	seen := make(map[string]bool)

	l.events.NewestFirst(func(ev domain.SecurityEvent) bool {
		m.EventsByType[ev.Type]++
		m.EventsBySeverity[ev.Severity]++
		if len(m.RecentEvents) < recentEventsInMetric {
			m.RecentEvents = append(m.RecentEvents, ev)
		}
		if ev.Severity == domain.SeverityHigh || ev.Severity == domain.SeverityCritical {
			if !seen[ev.Address] && len(m.SuspiciousAddresses) < maxSuspiciousInMetric {
				seen[ev.Address] = true
				m.SuspiciousAddresses = append(m.SuspiciousAddresses, ev.Address)
			}
		}
		return true
	})
	sort.Strings(m.SuspiciousAddresses)
	return m
}

// Recent retorna até n eventos, do mais novo para o mais antigo.
func (l *EventLog) Recent(n int) []domain.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.events.Len() {
		n = l.events.Len()
	}
	out := make([]domain.SecurityEvent, 0, n)
	l.events.NewestFirst(func(ev domain.SecurityEvent) bool {
		out = append(out, ev)
		return len(out) < n
	})
	return out
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events.Len()
}

func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events.Reset()
}

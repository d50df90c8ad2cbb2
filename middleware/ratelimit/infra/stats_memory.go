package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"request-guard/middleware/ratelimit/domain"
)

const (
	// DefaultViolationCap é o tamanho do ring buffer de violações.
	DefaultViolationCap = 1000
	// DefaultCounterRetention é quanto tempo um contador ocioso sobrevive ao Prune.
	DefaultCounterRetention = 24 * time.Hour

	topAddressLimit = 10

	alertMediumAbove = 2
	alertHighAbove   = 5
)

// Counters é o contador por (endereço, endpoint).
type Counters struct {
	Requests   int
	Violations int
	FirstSeen  time.Time
	LastSeen   time.Time
}

type counterKey struct {
	address  string
	endpoint string
}

// Monitor guarda, em memória, a atividade do rate limit: contadores por
// (endereço, endpoint) e um ring buffer com as violações mais recentes.
//
// Os dois são independentes: Clear pode apagar um sem o outro.
type Monitor struct {
	mu         sync.Mutex
	counters   map[counterKey]*Counters
	violations *Ring[domain.ViolationRecord]

	now       func() time.Time
	logger    *slog.Logger
	retention time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	janitors sync.WaitGroup
}

var (
	_ domain.AttemptRecorder = (*Monitor)(nil)
	_ domain.ActivitySink    = (*Monitor)(nil)
)

type MonitorOption func(*Monitor)

func WithViolationCap(n int) MonitorOption {
	return func(m *Monitor) { m.violations = NewRing[domain.ViolationRecord](n) }
}

func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

func WithCounterRetention(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.retention = d }
}

func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		counters:   make(map[counterKey]*Counters),
		violations: NewRing[domain.ViolationRecord](DefaultViolationCap),
		now:        time.Now,
		logger:     slog.Default(),
		retention:  DefaultCounterRetention,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record implementa domain.ActivitySink.
func (m *Monitor) Record(_ context.Context, a domain.Attempt) error {
	m.RecordAttempt(a)
	return nil
}

// RecordAttempt soma no contador da chave e, se for violação, grava no ring buffer.
func (m *Monitor) RecordAttempt(a domain.Attempt) {
	at := a.At
	if at.IsZero() {
		at = m.now()
	}
	ck := counterKey{address: a.Address, endpoint: a.Endpoint}

	m.mu.Lock()
	c, ok := m.counters[ck]
	if !ok {
		c = &Counters{FirstSeen: at}
		m.counters[ck] = c
	}
	c.Requests++
	c.LastSeen = at

	if !a.IsViolation {
		m.mu.Unlock()
		return
	}

	c.Violations++
	violations := c.Violations
	m.violations.Push(domain.ViolationRecord{
		Address:        a.Address,
		Timestamp:      at,
		Endpoint:       a.Endpoint,
		ClientIdentity: a.ClientIdentity,
		Limit:          a.Limit,
		AttemptCount:   a.AttemptCount,
	})
	m.mu.Unlock()

	// loga só quando cruza um patamar de alerta
	if violations == alertMediumAbove+1 || violations == alertHighAbove+1 {
		msg, _ := alertMessage(a.Address, a.Endpoint, violations)
		m.logger.Warn("rate limit alert", "ip", a.Address, "endpoint", a.Endpoint, "violations", violations, "alert", msg)
	}
}

// Stats agrega a atividade com timestamp > now - timeframe.
func (m *Monitor) Stats(timeframe string) domain.RateLimitStats {
	tf := domain.ParseTimeframe(timeframe)
	cutoff := m.now().Add(-tf)

	m.mu.Lock()
	defer m.mu.Unlock()

	byAddr := make(map[string]*domain.AddressStat)
	byEndpoint := make(map[string]*domain.EndpointStat)
	addr := func(a string) *domain.AddressStat {
		st, ok := byAddr[a]
		if !ok {
			st = &domain.AddressStat{Address: a}
			byAddr[a] = st
		}
		return st
	}
	endpoint := func(e string) *domain.EndpointStat {
		st, ok := byEndpoint[e]
		if !ok {
			st = &domain.EndpointStat{Endpoint: e}
			byEndpoint[e] = st
		}
		return st
	}

	out := domain.RateLimitStats{Timeframe: tf, TimeframeMs: tf.Milliseconds()}

	for k, c := range m.counters {
		if !c.LastSeen.After(cutoff) {
			continue
		}
		out.TotalRequests += c.Requests
		addr(k.address).Requests += c.Requests
		endpoint(k.endpoint).Requests += c.Requests
	}

	m.violations.NewestFirst(func(v domain.ViolationRecord) bool {
		// ordem de chegada não garante ordem de timestamp: percorre o ring inteiro
		if !v.Timestamp.After(cutoff) {
			return true
		}
		out.Violations++
		addr(v.Address).Violations++
		endpoint(v.Endpoint).Violations++
		return true
	})

	out.UniqueAddresses = len(byAddr)

	out.TopAddresses = make([]domain.AddressStat, 0, len(byAddr))
	for _, st := range byAddr {
		out.TopAddresses = append(out.TopAddresses, *st)
	}
	sort.Slice(out.TopAddresses, func(i, j int) bool {
		a, b := out.TopAddresses[i], out.TopAddresses[j]
		if a.Requests != b.Requests {
			return a.Requests > b.Requests
		}
		return a.Address < b.Address
	})
	if len(out.TopAddresses) > topAddressLimit {
		out.TopAddresses = out.TopAddresses[:topAddressLimit]
	}

	out.Endpoints = make([]domain.EndpointStat, 0, len(byEndpoint))
	for _, st := range byEndpoint {
		out.Endpoints = append(out.Endpoints, *st)
	}
	sort.Slice(out.Endpoints, func(i, j int) bool {
		a, b := out.Endpoints[i], out.Endpoints[j]
		if a.Requests != b.Requests {
			return a.Requests > b.Requests
		}
		return a.Endpoint < b.Endpoint
	})

	return out
}

// Violations retorna as violações do timeframe, da mais nova para a mais antiga.
func (m *Monitor) Violations(timeframe string) []domain.ViolationRecord {
	cutoff := m.now().Add(-domain.ParseTimeframe(timeframe))

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ViolationRecord, 0)
	m.violations.NewestFirst(func(v domain.ViolationRecord) bool {
		if v.Timestamp.After(cutoff) {
			out = append(out, v)
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Clear é o reset administrativo.
func (m *Monitor) Clear(target domain.ClearTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch target {
	case domain.ClearViolations:
		m.violations.Reset()
	case domain.ClearCounters:
		m.counters = make(map[counterKey]*Counters)
	case domain.ClearAll:
		m.violations.Reset()
		m.counters = make(map[counterKey]*Counters)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownClearTarget, target)
	}
	return nil
}

// Alert retorna um alerta por patamar fixo: HIGH acima de 5 violações, MEDIUM acima de 2.
func (m *Monitor) Alert(address, endpoint string) (string, bool) {
	m.mu.Lock()
	c, ok := m.counters[counterKey{address: address, endpoint: endpoint}]
	violations := 0
	if ok {
		violations = c.Violations
	}
	m.mu.Unlock()

	return alertMessage(address, endpoint, violations)
}

func alertMessage(address, endpoint string, violations int) (string, bool) {
	switch {
	case violations > alertHighAbove:
		return fmt.Sprintf("HIGH: %d rate limit violations from %s on %s", violations, address, endpoint), true
	case violations > alertMediumAbove:
		return fmt.Sprintf("MEDIUM: %d rate limit violations from %s on %s", violations, address, endpoint), true
	}
	return "", false
}

// Counter retorna uma cópia do contador da chave.
func (m *Monitor) Counter(address, endpoint string) (Counters, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[counterKey{address: address, endpoint: endpoint}]
	if !ok {
		return Counters{}, false
	}
	return *c, true
}

// Totals soma todos os contadores e o tamanho atual do ring de violações.
func (m *Monitor) Totals() (requests, violations, buffered int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.counters {
		requests += c.Requests
		violations += c.Violations
	}
	return requests, violations, m.violations.Len()
}

// Prune remove contadores ociosos há mais de retention.
func (m *Monitor) Prune(retention time.Duration) int {
	cutoff := m.now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, c := range m.counters {
		if c.LastSeen.Before(cutoff) {
			delete(m.counters, k)
			removed++
		}
	}
	return removed
}

// StartJanitor roda Prune com a retenção configurada a cada `every`.
func (m *Monitor) StartJanitor(ctx DoneContext, every time.Duration) {
	if every <= 0 || m.retention <= 0 {
		return
	}

	t := time.NewTicker(every)
	m.janitors.Add(1)
	go func() {
		defer m.janitors.Done()
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-t.C:
				if n := m.Prune(m.retention); n > 0 {
					m.logger.Debug("pruned idle rate limit counters", "removed", n)
				}
			}
		}
	}()
}

// Close para o janitor e espera ele sair. Pode ser chamado mais de uma vez.
func (m *Monitor) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.janitors.Wait()
	return nil
}

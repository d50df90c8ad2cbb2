package infra

import (
	"log/slog"
	"sync/atomic"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// ThrottledAlert limita o caminho de escalonamento com um token bucket
// (golang.org/x/time/rate), para uma rajada de eventos críticos não inundar o pager.
//
// Eventos suprimidos continuam no EventLog; só o hook deixa de ser chamado.
type ThrottledAlert struct {
	lim        *rate.Limiter
	hook       domain.AlertHook
	logger     *slog.Logger
	suppressed atomic.Int64
}

// NewThrottledAlert permite `burst` alertas imediatos e depois um a cada `every`.
func NewThrottledAlert(hook domain.AlertHook, every time.Duration, burst int, logger *slog.Logger) *ThrottledAlert {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ThrottledAlert{
		lim:    rate.NewLimiter(limit, burst),
		hook:   hook,
		logger: logger,
	}
}

// Hook retorna a função a ser registrada via WithAlertHook.
func (a *ThrottledAlert) Hook() domain.AlertHook {
	return a.Fire
}

func (a *ThrottledAlert) Fire(ev domain.SecurityEvent) {
	if !a.lim.Allow() {
		n := a.suppressed.Add(1)
		a.logger.Warn("critical alert suppressed", "id", ev.ID, "type", ev.Type, "ip", ev.Address, "suppressed", n)
		return
	}
	if a.hook == nil {
		a.logger.Error("CRITICAL security event", "id", ev.ID, "type", ev.Type, "ip", ev.Address, "url", ev.URL, "details", ev.Details)
		return
	}
	a.hook(ev)
}

// Suppressed é o total de alertas descartados pelo throttle.
func (a *ThrottledAlert) Suppressed() int64 { return a.suppressed.Load() }

package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"request-guard/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Nenhum caminho aqui devolve erro ou derruba a requisição por causa de bookkeeping.
type Service struct {
	Store      domain.WindowStore
	Classifier *Classifier
	// Monitor recebe toda tentativa, permitida ou não.
	Monitor domain.AttemptRecorder
	// Events recebe só as negações.
	Events SecurityEvents
	// Sink é um espelho externo opcional (ex.: Redis); erros são ignorados.
	Sink   domain.ActivitySink
	Now    func() time.Time
	Logger *slog.Logger
}

// Evaluate classifica a requisição e aplica a política do bucket.
func (s Service) Evaluate(ctx context.Context, d domain.RequestDescriptor) domain.Decision {
	c := s.Classifier
	if c == nil {
		c = NewClassifier(nil)
	}
	p, _ := c.Classify(d.Path, d.Method)
	return s.Apply(ctx, d, p)
}

// Apply toma a decisão de admissão para uma política:
// whitelist -> leitura da janela -> comparação com a quota -> registro -> decisão.
func (s Service) Apply(ctx context.Context, d domain.RequestDescriptor, p domain.Policy) domain.Decision {
	now := s.now()
	addr := ClientAddress(d)
	key := s.key(d, p)

	// whitelist antes de qualquer acesso ao store: não muta estado compartilhado
	if p.Whitelisted(addr) || s.Store == nil {
		return domain.Decision{
			Allowed:   true,
			Limit:     p.MaxRequests,
			Remaining: p.MaxRequests,
			ResetTime: now.Add(p.Window),
			Policy:    p.Name,
			Key:       key,
		}
	}

	attempt := domain.Attempt{
		Key:            key,
		Address:        addr,
		Endpoint:       cleanPath(d.Path),
		Method:         d.Method,
		ClientIdentity: d.Header("User-Agent"),
		Policy:         p.Name,
		Limit:          p.MaxRequests,
		At:             now,
	}

	// leitura e admissão sob o mesmo lock: rajadas concorrentes não passam da quota
	entry, admitted := s.Store.Admit(key, p.Window, p.MaxRequests)
	if !admitted {
		occupancy := entry.Count()
		dec := domain.Decision{
			Allowed:    false,
			Limit:      p.MaxRequests,
			Remaining:  0,
			ResetTime:  entry.ResetTime,
			RetryAfter: retryAfter(entry.ResetTime, now),
			Policy:     p.Name,
			Key:        key,
		}

		attempt.IsViolation = true
		attempt.AttemptCount = occupancy + 1
		s.record(ctx, attempt)
		s.Events.RateLimitViolation(d, addr, p, attempt.AttemptCount)
		s.notify(d, p, dec)
		return dec
	}

	attempt.AttemptCount = entry.Count()
	s.record(ctx, attempt)

	return domain.Decision{
		Allowed:   true,
		Limit:     p.MaxRequests,
		Remaining: max(0, p.MaxRequests-entry.Count()),
		ResetTime: entry.ResetTime,
		Policy:    p.Name,
		Key:       key,
	}
}

// retryAfter = ceil((resetTime-now)/1s), nunca menor que 1s.
func retryAfter(reset, now time.Time) time.Duration {
	d := reset.Sub(now)
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func (s Service) key(d domain.RequestDescriptor, p domain.Policy) domain.Key {
	if p.KeyFunc != nil {
		if k := p.KeyFunc(d); k != "" {
			return k
		}
	}
	return DeriveKey(p.Name, d)
}

func (s Service) record(ctx context.Context, a domain.Attempt) {
	if s.Monitor != nil {
		s.Monitor.RecordAttempt(a)
	}
	if s.Sink != nil {
		if err := s.Sink.Record(ctx, a); err != nil {
			s.logger().Debug("activity sink failed", "error", err, "key", a.Key)
		}
	}
}

// notify chama o listener da política; um panic vira evento middleware_error.
func (s Service) notify(d domain.RequestDescriptor, p domain.Policy, dec domain.Decision) {
	if p.OnLimitReached == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("onLimitReached listener for %s panicked: %v", p.Name, r)
			s.logger().Error("rate limit listener failed", "policy", p.Name, "error", err)
			s.Events.MiddlewareError(d, err)
		}
	}()
	p.OnLimitReached(d, dec)
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

package application

import (
	"context"
	"errors"
	"time"

	"request-guard/middleware/ratelimit/domain"
)

// ConcurrencyService decide se uma requisição já admitida pelo rate limit
// ganha uma vaga de execução. Não sabe nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até o ctx da requisição encerrar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
//
// O erro distingue fila cheia (ErrNoSlot) de cliente que desistiu (ErrClientGone).
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Join(domain.ErrClientGone, ctx.Err())
	}
	return nil, domain.ErrNoSlot
}

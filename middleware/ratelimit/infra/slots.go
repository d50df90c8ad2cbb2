package infra

import (
	"context"
	"sync"
	"sync/atomic"

	"request-guard/middleware/ratelimit/domain"

	"golang.org/x/sync/semaphore"
)

type slotPool struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// NewSlotPool cria um pool de `max` vagas sobre um semáforo ponderado.
func NewSlotPool(max int) domain.SlotPool {
	return &slotPool{sem: semaphore.NewWeighted(int64(max)), capacity: max}
}

func (p *slotPool) Acquire(ctx context.Context) (func(), bool) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	p.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		})
	}, true
}

func (p *slotPool) InFlight() int { return int(p.inFlight.Load()) }

func (p *slotPool) Capacity() int { return p.capacity }

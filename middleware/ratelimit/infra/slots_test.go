package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPool_ReleaseIsIdempotent(t *testing.T) {
	p := NewSlotPool(1)

	release, ok := p.Acquire(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, p.InFlight())

	release()
	release()
	assert.Equal(t, 0, p.InFlight())

	// a vaga voltou exatamente uma vez
	r2, ok := p.Acquire(context.Background())
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok = p.Acquire(ctx)
	assert.False(t, ok)
	r2()
}

func TestSlotPool_Capacity(t *testing.T) {
	assert.Equal(t, 3, NewSlotPool(3).Capacity())
}

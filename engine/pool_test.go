package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsAdmission(t *testing.T) {
	pool := NewPool(1)
	assert.Equal(t, 1, pool.Cap())

	require.NoError(t, pool.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a second Acquire must block while the first slot is held")

	pool.Release()
	require.NoError(t, pool.Acquire(context.Background()), "Acquire must succeed once the slot is released")
}

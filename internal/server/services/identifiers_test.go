package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierAllocator_UsesAlphabet(t *testing.T) {
	a := NewIdentifierAllocator(8, 3, func(context.Context, string) (bool, error) { return false, nil })

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := a.Allocate(context.Background())
		require.NoError(t, err)
		require.Len(t, id, 8)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(common.IdentifierAlphabet, r), "unexpected rune %q", r)
		}
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestIdentifierAllocator_RetriesOnCollision(t *testing.T) {
	draws := []string{"aaaa", "bbbb", "cccc"}
	live := map[string]bool{"aaaa": true, "bbbb": true}

	a := NewIdentifierAllocator(4, 3, func(_ context.Context, id string) (bool, error) { return live[id], nil })
	i := 0
	a.draw = func(int) (string, error) {
		id := draws[i]
		i++
		return id, nil
	}

	id, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cccc", id)
	assert.Equal(t, 3, i)
}

func TestIdentifierAllocator_ExhaustsRetries(t *testing.T) {
	calls := 0
	a := NewIdentifierAllocator(4, 5, func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})

	_, err := a.Allocate(context.Background())
	require.ErrorIs(t, err, common.ErrExhaustedRetries)
	assert.Equal(t, 5, calls)
}

func TestIdentifierAllocator_LivenessError(t *testing.T) {
	boom := errors.New("db down")
	a := NewIdentifierAllocator(4, 5, func(context.Context, string) (bool, error) { return false, boom })

	_, err := a.Allocate(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestIdentifierAllocator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewIdentifierAllocator(4, 5, func(context.Context, string) (bool, error) { return false, nil })
	_, err := a.Allocate(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

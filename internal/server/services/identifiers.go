package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/shared"
)

// LiveFunc reports whether id currently names a live file.
type LiveFunc func(ctx context.Context, id string) (bool, error)

// IdentifierAllocator draws short random identifiers from
// common.IdentifierAlphabet and retries a bounded number of times when the
// draw names a live file.
type IdentifierAllocator struct {
	length   int
	attempts int
	live     LiveFunc
	draw     func(length int) (string, error)
}

func NewIdentifierAllocator(length, attempts int, live LiveFunc) *IdentifierAllocator {
	return &IdentifierAllocator{
		length:   length,
		attempts: attempts,
		live:     live,
		draw: func(n int) (string, error) {
			return shared.RandomString(common.IdentifierAlphabet, n)
		},
	}
}

// Allocate returns an identifier that was not live when it was checked.
// Callers still have to handle common.ErrDuplicateIdentifier on insert.
func (a *IdentifierAllocator) Allocate(ctx context.Context) (string, error) {
	for i := 0; i < a.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id, err := a.draw(a.length)
		if err != nil {
			return "", fmt.Errorf("draw identifier: %w", err)
		}

		taken, err := a.live(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check identifier: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %d attempts", common.ErrExhaustedRetries, a.attempts)
}

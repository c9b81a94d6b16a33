// Package content stores blob bytes keyed by file identifier. Metadata
// lives elsewhere; a Store only knows keys and bytes.
package content

import (
	"context"
	"io"
	"strings"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
)

type Store interface {
	// Put streams r under key. At most limit bytes are accepted: a longer
	// stream fails with common.ErrFileTooLarge and nothing becomes visible
	// under key. Returns the number of bytes stored.
	Put(ctx context.Context, key string, r io.Reader, limit int64) (int64, error)
	// Open fails with common.ErrorNotFound for unknown keys.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete fails with common.ErrorNotFound for unknown keys.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys lists every stored key, in no particular order.
	Keys(ctx context.Context) ([]string, error)
}

func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return common.ErrBadRequest
	}
	return nil
}

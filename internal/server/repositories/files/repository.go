// Package files stores metadata records for live blobs.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
)

type Repository interface {
	// Create fails with common.ErrDuplicateIdentifier when the ID is live.
	Create(ctx context.Context, file *models.File) error
	Get(ctx context.Context, id string) (*models.File, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Touch records a download at the given time and returns the updated record.
	Touch(ctx context.Context, id string, at time.Time) (*models.File, error)
	Delete(ctx context.Context, id string) error
	// ListByOwner is ordered by creation time, then ID.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	// ListAccessedBefore returns files last accessed strictly before cutoff.
	// An empty ownerID means every owner.
	ListAccessedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]*models.File, error)
	Usage(ctx context.Context) (map[string]models.Usage, error)
}

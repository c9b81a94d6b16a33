// Package users stores enrolled identities and their token fingerprints.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
)

type Repository interface {
	// Create fails with common.ErrorAlreadyExists when the ID is taken.
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByTokenHash(ctx context.Context, hash string) (*models.User, error)
	// UpdateTokenHash replaces oldHash with newHash. It fails with
	// common.ErrorNotFound when the user is gone or no longer holds oldHash.
	UpdateTokenHash(ctx context.Context, id, oldHash, newHash string) error
	// AddTraffic counts one transfer of n bytes against the user.
	AddTraffic(ctx context.Context, id string, dir models.Direction, n int64, at time.Time) error
}

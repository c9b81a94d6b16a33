package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/auth"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/users"
)

// Authorize fails with common.ErrForbidden unless caller is requested.
func Authorize(caller, requested string) error {
	if caller != requested {
		return common.ErrForbidden
	}
	return nil
}

// UserRegistry maps bearer tokens to allowlisted identities. Resolved
// tokens are cached by fingerprint; rotation evicts the old entry.
type UserRegistry struct {
	users   users.Repository
	secret  []byte
	allowed map[string]struct{}
	cache   *expirable.LRU[string, *models.User]
	locks   *kmutex.Kmutex
	clock   clock.Clock
	logger  logging.Logger
}

// NewUserRegistry disables the cache when cacheSize is not positive.
func NewUserRegistry(repo users.Repository, secret string, allowed []string, cacheSize int, cacheTTL time.Duration, clk clock.Clock, logger logging.Logger) *UserRegistry {
	r := &UserRegistry{
		users:   repo,
		secret:  []byte(secret),
		allowed: make(map[string]struct{}, len(allowed)),
		locks:   kmutex.New(),
		clock:   clk,
		logger:  logger.With("module", "users"),
	}
	for _, id := range allowed {
		r.allowed[id] = struct{}{}
	}
	if cacheSize > 0 {
		r.cache = expirable.NewLRU[string, *models.User](cacheSize, nil, cacheTTL)
	}
	return r
}

func (r *UserRegistry) isAllowed(id string) bool {
	_, ok := r.allowed[id]
	return ok
}

// Resolve returns the identity bound to token. Unknown, malformed,
// superseded or no longer allowlisted tokens all fail with
// common.ErrUnauthenticated.
func (r *UserRegistry) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrUnauthenticated
	}

	userID, err := auth.GetUserIDFromToken(token, r.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnauthenticated, err)
	}
	if !r.isAllowed(userID) {
		return nil, fmt.Errorf("%w: %s is not allowlisted", common.ErrUnauthenticated, userID)
	}

	fp, err := auth.Fingerprint(token, r.secret)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if u, ok := r.cache.Get(fp); ok && u.ID == userID {
			return u, nil
		}
	}

	r.locks.Lock(userID)
	defer r.locks.Unlock(userID)

	u, err := r.users.GetByTokenHash(ctx, fp)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if u.ID != userID {
		return nil, common.ErrUnauthenticated
	}

	if r.cache != nil {
		r.cache.Add(fp, u)
	}
	return u, nil
}

// Authorize fails with common.ErrForbidden unless caller is requested.
func (r *UserRegistry) Authorize(caller, requested string) error {
	return Authorize(caller, requested)
}

// RotateToken replaces the token whose fingerprint is presented with a
// new one. The swap only succeeds while presented is still current, so of
// two rotations racing on the same token exactly one wins; the loser fails
// with common.ErrUnauthenticated.
func (r *UserRegistry) RotateToken(ctx context.Context, userID, presented string) (string, error) {
	if !r.isAllowed(userID) {
		return "", common.ErrUnauthenticated
	}

	r.locks.Lock(userID)
	defer r.locks.Unlock(userID)

	token, fp, err := r.issue(userID)
	if err != nil {
		return "", err
	}
	err = r.users.UpdateTokenHash(ctx, userID, presented, fp)
	if errors.Is(err, common.ErrorNotFound) {
		return "", common.ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("rotate token: %w", err)
	}

	if r.cache != nil {
		r.cache.Remove(presented)
	}
	r.logger.Info(ctx, "token rotated", "user", userID)
	return token, nil
}

// RecordTransfer counts a finished transfer against userID. The file is
// already stored or sent, so a failure here is logged and not returned.
func (r *UserRegistry) RecordTransfer(ctx context.Context, userID string, dir models.Direction, n int64) {
	err := r.users.AddTraffic(ctx, userID, dir, n, r.clock.Now().UTC())
	if err != nil {
		r.logger.Error(ctx, "record traffic failed", "user", userID, "error", err)
	}
}

// Traffic reads userID's counters from the repository, bypassing the
// token cache whose entries carry counters as of resolution.
func (r *UserRegistry) Traffic(ctx context.Context, userID string) (models.Traffic, error) {
	u, err := r.users.Get(ctx, userID)
	if err != nil {
		return models.Traffic{}, fmt.Errorf("read traffic: %w", err)
	}
	return u.Traffic, nil
}

// Enroll creates an allowlisted identity and returns its first token.
// created is false, with an empty token, when the identity already exists.
func (r *UserRegistry) Enroll(ctx context.Context, userID string) (token string, created bool, err error) {
	if !r.isAllowed(userID) {
		return "", false, common.ErrForbidden
	}

	r.locks.Lock(userID)
	defer r.locks.Unlock(userID)

	_, err = r.users.Get(ctx, userID)
	switch {
	case err == nil:
		return "", false, nil
	case !errors.Is(err, common.ErrorNotFound):
		return "", false, fmt.Errorf("enroll: %w", err)
	}

	token, fp, err := r.issue(userID)
	if err != nil {
		return "", false, err
	}

	err = r.users.Create(ctx, &models.User{ID: userID, TokenHash: fp, CreatedAt: r.clock.Now().UTC()})
	if errors.Is(err, common.ErrorAlreadyExists) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("enroll: %w", err)
	}

	r.logger.Info(ctx, "user enrolled", "user", userID)
	return token, true, nil
}

func (r *UserRegistry) issue(userID string) (token, fingerprint string, err error) {
	token, err = auth.GenerateToken(userID, r.secret, r.clock.Now())
	if err != nil {
		return "", "", fmt.Errorf("issue token: %w", err)
	}
	fingerprint, err = auth.Fingerprint(token, r.secret)
	if err != nil {
		return "", "", fmt.Errorf("issue token: %w", err)
	}
	return token, fingerprint, nil
}

package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
)

// Key layout:
//
//	user/<id>      -> JSON models.User
//	token/<hash>   -> <id>
const (
	userPrefix  = "user/"
	tokenPrefix = "token/"
)

// BadgerRepository keeps users in an embedded Badger database shared with
// the files repository.
type BadgerRepository struct {
	db *badger.DB
}

func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{db: db}
}

func (r *BadgerRepository) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(userPrefix + user.ID))
		if err == nil {
			return common.ErrorAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("badger error: %w", err)
		}
		if err := txn.Set([]byte(userPrefix+user.ID), val); err != nil {
			return fmt.Errorf("badger error: %w", err)
		}
		return txn.Set([]byte(tokenPrefix+user.TokenHash), []byte(user.ID))
	})
}

func (r *BadgerRepository) Get(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *models.User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (r *BadgerRepository) GetByTokenHash(ctx context.Context, hash string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *models.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tokenPrefix + hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("badger error: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("badger error: %w", err)
		}
		user, err = getUser(txn, string(id))
		return err
	})
	return user, err
}

// UpdateTokenHash swaps the fingerprint index in the same transaction as
// the user record, so the old token stops resolving at commit. A conflicting
// write to the record is retried; the retry sees a rotation that won.
func (r *BadgerRepository) UpdateTokenHash(ctx context.Context, id, oldHash, newHash string) error {
	return r.retryConflicts(ctx, func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		if user.TokenHash != oldHash {
			return common.ErrorNotFound
		}
		if err := txn.Delete([]byte(tokenPrefix + oldHash)); err != nil {
			return fmt.Errorf("badger error: %w", err)
		}
		user.TokenHash = newHash
		if err := putUser(txn, user); err != nil {
			return err
		}
		return txn.Set([]byte(tokenPrefix+newHash), []byte(id))
	})
}

func (r *BadgerRepository) AddTraffic(ctx context.Context, id string, dir models.Direction, n int64, at time.Time) error {
	return r.retryConflicts(ctx, func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		user.Traffic.Add(dir, n, at)
		return putUser(txn, user)
	})
}

// retryConflicts reruns fn while its transaction conflicts, which
// concurrent transfers of the same user's files produce routinely.
func (r *BadgerRepository) retryConflicts(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

func putUser(txn *badger.Txn, user *models.User) error {
	val, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := txn.Set([]byte(userPrefix+user.ID), val); err != nil {
		return fmt.Errorf("badger error: %w", err)
	}
	return nil
}

func getUser(txn *badger.Txn, id string) (*models.User, error) {
	item, err := txn.Get([]byte(userPrefix + id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("badger error: %w", err)
	}

	user := &models.User{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, user)
	})
	if err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

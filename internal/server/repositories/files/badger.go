package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
)

// Key layout:
//
//	file/<id>            -> JSON models.File
//	owner/<owner>/<id>   -> empty, secondary index for listings
const (
	filePrefix  = "file/"
	ownerPrefix = "owner/"
)

// BadgerRepository keeps file metadata in an embedded Badger database.
type BadgerRepository struct {
	db *badger.DB
}

func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{db: db}
}

func fileKey(id string) []byte { return []byte(filePrefix + id) }

func ownerKey(owner, id string) []byte { return []byte(ownerPrefix + owner + "/" + id) }

func (r *BadgerRepository) Create(ctx context.Context, file *models.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode file: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(fileKey(file.ID))
		if err == nil {
			return common.ErrDuplicateIdentifier
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("badger error: %w", err)
		}
		if err := txn.Set(fileKey(file.ID), val); err != nil {
			return fmt.Errorf("badger error: %w", err)
		}
		return txn.Set(ownerKey(file.OwnerID, file.ID), nil)
	})
}

func (r *BadgerRepository) Get(ctx context.Context, id string) (*models.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var file *models.File
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		file, err = getFile(txn, id)
		return err
	})
	return file, err
}

func (r *BadgerRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *BadgerRepository) Touch(ctx context.Context, id string, at time.Time) (*models.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var file *models.File
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		file, err = getFile(txn, id)
		if err != nil {
			return err
		}
		if at.After(file.LastAccessAt) {
			file.LastAccessAt = at
		}
		file.Downloads++
		return putFile(txn, file)
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (r *BadgerRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		file, err := getFile(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(fileKey(id)); err != nil {
			return fmt.Errorf("badger error: %w", err)
		}
		return txn.Delete(ownerKey(file.OwnerID, id))
	})
}

func (r *BadgerRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	result, err := r.collect(ctx, ownerID, func(*models.File) bool { return true })
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *BadgerRepository) ListAccessedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]*models.File, error) {
	return r.collect(ctx, ownerID, func(f *models.File) bool {
		return f.LastAccessAt.Before(cutoff)
	})
}

func (r *BadgerRepository) Usage(ctx context.Context) (map[string]models.Usage, error) {
	all, err := r.collect(ctx, "", func(*models.File) bool { return true })
	if err != nil {
		return nil, err
	}

	result := make(map[string]models.Usage)
	for _, f := range all {
		u := result[f.OwnerID]
		u.Bytes += f.Size
		u.Files++
		result[f.OwnerID] = u
	}
	return result, nil
}

// collect walks either the owner index or every file record and keeps the
// records accepted by keep.
func (r *BadgerRepository) collect(ctx context.Context, ownerID string, keep func(*models.File) bool) ([]*models.File, error) {
	var result []*models.File

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		if ownerID != "" {
			opts.Prefix = []byte(ownerPrefix + ownerID + "/")
			opts.PrefetchValues = false
		} else {
			opts.Prefix = []byte(filePrefix)
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		processed := 0
		for it.Rewind(); it.Valid(); it.Next() {
			processed++
			if processed%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var file *models.File
			item := it.Item()
			if ownerID != "" {
				id := strings.TrimPrefix(string(item.Key()), string(opts.Prefix))
				f, err := getFile(txn, id)
				if errors.Is(err, common.ErrorNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				// owner IDs may themselves contain a slash
				if f.OwnerID != ownerID {
					continue
				}
				file = f
			} else {
				file = &models.File{}
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, file)
				}); err != nil {
					return fmt.Errorf("decode file: %w", err)
				}
			}

			if keep(file) {
				result = append(result, file)
			}
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getFile(txn *badger.Txn, id string) (*models.File, error) {
	item, err := txn.Get(fileKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("badger error: %w", err)
	}

	file := &models.File{}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, file)
	}); err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return file, nil
}

func putFile(txn *badger.Txn, file *models.File) error {
	val, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode file: %w", err)
	}
	if err := txn.Set(fileKey(file.ID), val); err != nil {
		return fmt.Errorf("badger error: %w", err)
	}
	return nil
}

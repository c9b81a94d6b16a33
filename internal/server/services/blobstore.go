package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/content"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/files"
)

// BlobStore keeps file bytes and file metadata in step. Every operation on
// one identifier runs under that identifier's lock, so a file is either
// fully live (bytes and metadata) or absent.
type BlobStore struct {
	files   files.Repository
	content content.Store
	locks   *kmutex.Kmutex
	clock   clock.Clock
	logger  logging.Logger
}

func NewBlobStore(repo files.Repository, store content.Store, clk clock.Clock, logger logging.Logger) *BlobStore {
	return &BlobStore{
		files:   repo,
		content: store,
		locks:   kmutex.New(),
		clock:   clk,
		logger:  logger.With("module", "blobstore"),
	}
}

type PutRequest struct {
	ID          string
	OwnerID     string
	FileName    string
	ContentType string
	Body        io.Reader
	// Limit caps the stored size; a longer body fails with
	// common.ErrFileTooLarge.
	Limit int64
}

func (b *BlobStore) lock(id string) func() {
	b.locks.Lock(id)
	return func() { b.locks.Unlock(id) }
}

// storageErr passes domain errors through and marks everything else as a
// storage failure.
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, common.ErrFileTooLarge),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrBadRequest),
		errors.Is(err, common.ErrDuplicateIdentifier),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStorageFailure, op, err)
}

// Put writes bytes first and metadata second. When the metadata write
// fails the bytes are removed again.
func (b *BlobStore) Put(ctx context.Context, req PutRequest) (*models.File, error) {
	defer b.lock(req.ID)()

	live, err := b.files.Exists(ctx, req.ID)
	if err != nil {
		return nil, storageErr("check identifier", err)
	}
	if live {
		return nil, common.ErrDuplicateIdentifier
	}

	size, err := b.content.Put(ctx, req.ID, req.Body, req.Limit)
	if err != nil {
		return nil, storageErr("write content", err)
	}

	now := b.clock.Now().UTC()
	f := &models.File{
		ID:           req.ID,
		OwnerID:      req.OwnerID,
		FileName:     req.FileName,
		ContentType:  req.ContentType,
		Size:         size,
		CreatedAt:    now,
		LastAccessAt: now,
	}

	if err := b.files.Create(ctx, f); err != nil {
		if derr := b.content.Delete(context.WithoutCancel(ctx), req.ID); derr != nil {
			b.logger.Error(ctx, "orphaned content after failed metadata write", "id", req.ID, "error", derr)
		}
		return nil, storageErr("write metadata", err)
	}

	return f, nil
}

// Get opens the bytes of a live file and records the access. The caller
// closes the reader.
func (b *BlobStore) Get(ctx context.Context, id string) (io.ReadCloser, *models.File, error) {
	defer b.lock(id)()

	if _, err := b.files.Get(ctx, id); err != nil {
		return nil, nil, storageErr("read metadata", err)
	}

	rc, err := b.content.Open(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, fmt.Errorf("%w: content missing for %s", common.ErrStorageFailure, id)
		}
		return nil, nil, storageErr("open content", err)
	}

	f, err := b.files.Touch(ctx, id, b.clock.Now().UTC())
	if err != nil {
		_ = rc.Close()
		return nil, nil, storageErr("touch metadata", err)
	}
	return rc, f, nil
}

// GetMetadata does not count as an access.
func (b *BlobStore) GetMetadata(ctx context.Context, id string) (*models.File, error) {
	f, err := b.files.Get(ctx, id)
	if err != nil {
		return nil, storageErr("read metadata", err)
	}
	return f, nil
}

func (b *BlobStore) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := b.files.Exists(ctx, id)
	if err != nil {
		return false, storageErr("check identifier", err)
	}
	return ok, nil
}

func (b *BlobStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	list, err := b.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageErr("list files", err)
	}
	return list, nil
}

// ListAccessedBefore is a snapshot; callers recheck each file with
// DeleteIf before acting on it.
func (b *BlobStore) ListAccessedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]*models.File, error) {
	list, err := b.files.ListAccessedBefore(ctx, ownerID, cutoff)
	if err != nil {
		return nil, storageErr("list files", err)
	}
	return list, nil
}

// Delete removes a file owned by ownerID and returns the removed record.
func (b *BlobStore) Delete(ctx context.Context, id, ownerID string) (*models.File, error) {
	defer b.lock(id)()

	f, err := b.files.Get(ctx, id)
	if err != nil {
		return nil, storageErr("read metadata", err)
	}
	if err := Authorize(ownerID, f.OwnerID); err != nil {
		return nil, err
	}
	return f, b.remove(ctx, f)
}

// DeleteIf removes the file only when expired holds for its current
// record. It returns nil without error when the file is gone or kept.
func (b *BlobStore) DeleteIf(ctx context.Context, id string, expired func(*models.File) bool) (*models.File, error) {
	defer b.lock(id)()

	f, err := b.files.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, storageErr("read metadata", err)
	}
	if !expired(f) {
		return nil, nil
	}
	return f, b.remove(ctx, f)
}

// remove drops metadata, then bytes. Once metadata is gone the file is no
// longer live, so a failed byte delete is only logged; Reconcile collects
// the leftover on the next start.
func (b *BlobStore) remove(ctx context.Context, f *models.File) error {
	if err := b.files.Delete(ctx, f.ID); err != nil {
		return storageErr("delete metadata", err)
	}
	if err := b.content.Delete(context.WithoutCancel(ctx), f.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		b.logger.Error(ctx, "content left behind after delete", "id", f.ID, "error", err)
	}
	return nil
}

// Reconcile deletes stored bytes that have no metadata, left over from a
// crash between the two writes. It returns the number of objects removed.
func (b *BlobStore) Reconcile(ctx context.Context) (int, error) {
	keys, err := b.content.Keys(ctx)
	if err != nil {
		return 0, storageErr("list content", err)
	}

	removed := 0
	var errs []error
	for _, key := range keys {
		n, err := b.reconcileKey(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed += n
	}
	return removed, errors.Join(errs...)
}

func (b *BlobStore) reconcileKey(ctx context.Context, key string) (int, error) {
	defer b.lock(key)()

	live, err := b.files.Exists(ctx, key)
	if err != nil {
		return 0, storageErr("check identifier", err)
	}
	if live {
		return 0, nil
	}
	if err := b.content.Delete(ctx, key); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return 0, storageErr("delete orphan", err)
	}
	b.logger.Warn(ctx, "removed orphaned content", "id", key)
	return 1, nil
}

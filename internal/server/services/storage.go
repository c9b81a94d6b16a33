// Package services holds the storage engine: identifier allocation, quota
// accounting, the blob store, expiry and user resolution, plus the
// StorageService facade the transports call.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/config"
	"github.com/dmitrijs2005/blobkeeper/internal/server/content"
	"github.com/dmitrijs2005/blobkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/repomanager"
)

// sniffLen is how much of the body is inspected when the client declares
// no usable content type.
const sniffLen = 3072

const bulkDeleteConcurrency = 4

type FetchMode int

const (
	OutputRaw FetchMode = iota
	OutputPreview
	OutputMetadata
)

type BulkMode string

const (
	BulkAll     BulkMode = "all"
	BulkExpired BulkMode = "expired"
)

type UploadRequest struct {
	Token string
	Body  io.Reader
	// Size is the declared length, or -1 when unknown.
	Size        int64
	FileName    string
	ContentType string
}

type FileSummary struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	PreviewURL     string    `json:"preview_url"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	SizeHuman      string    `json:"size_human"`
	Downloads      int64     `json:"downloads"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessAt   time.Time `json:"last_access_at"`
	AvailableBytes int64     `json:"available_bytes,omitempty"`
}

// FetchResult carries exactly one of Body (OutputRaw), HTML (OutputPreview)
// or Summary (OutputMetadata). Body must be closed by the caller.
type FetchResult struct {
	File    *models.File
	Body    io.ReadCloser
	HTML    []byte
	Summary *FileSummary
}

type UserInfo struct {
	ID             string         `json:"id"`
	UsedBytes      int64          `json:"used_bytes"`
	LimitBytes     int64          `json:"limit_bytes"`
	AvailableBytes int64          `json:"available_bytes"`
	FileCount      int            `json:"file_count"`
	Usage          string         `json:"usage"`
	Traffic        models.Traffic `json:"traffic"`
	Token          string         `json:"token,omitempty"`
}

type Enrollment struct {
	UserID  string `json:"user_id"`
	Token   string `json:"token,omitempty"`
	Created bool   `json:"created"`
}

// StorageService is the entry point for every user-facing operation.
type StorageService struct {
	users  *UserRegistry
	ledger *QuotaLedger
	ids    *IdentifierAllocator
	blobs  *BlobStore
	expiry *ExpiryScanner

	baseURL     string
	retention   time.Duration
	maxFileSize int64

	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewStorageService wires the engine over the given backends and loads
// quota usage from the stored metadata.
func NewStorageService(ctx context.Context, cfg *config.Config, rm repomanager.RepositoryManager, store content.Store,
	clk clock.Clock, m *metrics.Metrics, logger logging.Logger) (*StorageService, error) {

	ledger := NewQuotaLedger(cfg.MaxFileSize, cfg.MaxTotalSize)
	if err := ledger.Load(ctx, rm.Files()); err != nil {
		return nil, err
	}

	blobs := NewBlobStore(rm.Files(), store, clk, logger)

	s := &StorageService{
		users: NewUserRegistry(rm.Users(), cfg.SecretKey, cfg.AllowedUsers,
			cfg.UserCacheSize, cfg.UserCacheTTL, clk, logger),
		ledger:      ledger,
		ids:         NewIdentifierAllocator(cfg.IdentifierLength, cfg.IdentifierAttempts, blobs.Exists),
		blobs:       blobs,
		expiry:      NewExpiryScanner(blobs, ledger, clk, m, logger),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		retention:   cfg.RetentionWindow,
		maxFileSize: cfg.MaxFileSize,
		metrics:     m,
		logger:      logger.With("module", "storage"),
	}

	m.RegisterGaugeFunc("stored_bytes", "Bytes held by live files and in-flight uploads.",
		func() float64 { return float64(ledger.TotalBytes()) })

	return s, nil
}

func (s *StorageService) Blobs() *BlobStore { return s.blobs }

func (s *StorageService) Expiry() *ExpiryScanner { return s.expiry }

func (s *StorageService) Ledger() *QuotaLedger { return s.ledger }

func (s *StorageService) Users() *UserRegistry { return s.users }

func (s *StorageService) fileURL(id string) string {
	return s.baseURL + "/s/" + id
}

func (s *StorageService) summarize(f *models.File) FileSummary {
	url := s.fileURL(f.ID)
	return FileSummary{
		ID:           f.ID,
		URL:          url,
		PreviewURL:   url + "?output=html",
		FileName:     f.FileName,
		ContentType:  f.ContentType,
		Size:         f.Size,
		SizeHuman:    humanize.IBytes(uint64(f.Size)),
		Downloads:    f.Downloads,
		CreatedAt:    f.CreatedAt,
		LastAccessAt: f.LastAccessAt,
	}
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "unnamed"
	}
	return name
}

// sniff fills in a missing content type from the first bytes of body and
// returns a reader that still yields the whole body.
func sniff(body io.Reader, declared string) (io.Reader, string, error) {
	if declared != "" && declared != "application/octet-stream" {
		return body, declared, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", err
	}
	head = head[:n]

	return io.MultiReader(bytes.NewReader(head), body), mimetype.Detect(head).String(), nil
}

func uploadFailureReason(err error) string {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, common.ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, common.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, common.ErrStorageFailure):
		return "storage_failure"
	case errors.Is(err, common.ErrBadRequest):
		return "bad_request"
	}
	return "error"
}

// overrunError names the limit a body ran past. The store only reports
// common.ErrFileTooLarge; a declared size or a quota-bounded limit is a
// different failure.
func (s *StorageService) overrunError(err error, declared, limit int64) error {
	if !errors.Is(err, common.ErrFileTooLarge) {
		return err
	}
	switch {
	case declared >= 0:
		return fmt.Errorf("%w: body is longer than the declared %d bytes", common.ErrBadRequest, declared)
	case limit < s.maxFileSize:
		return fmt.Errorf("%w: upload does not fit the remaining %d bytes", common.ErrQuotaExceeded, limit)
	}
	return err
}

// Upload stores one file for the token's owner. Any failure after the
// reservation returns the reserved bytes.
func (s *StorageService) Upload(ctx context.Context, req UploadRequest) (summary *FileSummary, err error) {
	defer func() {
		if err != nil {
			s.metrics.UploadFailed(uploadFailureReason(err))
		}
	}()

	user, err := s.users.Resolve(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	var res *Reservation
	if req.Size >= 0 {
		if err := s.ledger.CheckFileSize(req.Size); err != nil {
			return nil, err
		}
		res, err = s.ledger.Reserve(user.ID, req.Size)
	} else {
		res, err = s.ledger.ReserveUpTo(user.ID, s.maxFileSize)
	}
	if err != nil {
		return nil, err
	}
	defer s.ledger.Release(res)

	id, err := s.ids.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	body, contentType, err := sniff(req.Body, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", common.ErrBadRequest, err)
	}

	f, err := s.blobs.Put(ctx, PutRequest{
		ID:          id,
		OwnerID:     user.ID,
		FileName:    cleanFileName(req.FileName),
		ContentType: contentType,
		Body:        body,
		Limit:       res.Amount,
	})
	if err != nil {
		return nil, s.overrunError(err, req.Size, res.Amount)
	}
	s.ledger.Commit(res, f.Size)
	s.users.RecordTransfer(ctx, user.ID, models.Upload, f.Size)

	s.metrics.UploadSucceeded(f.Size)
	s.logger.Info(ctx, "file uploaded", "id", f.ID, "owner", user.ID, "name", f.FileName,
		"size", humanize.IBytes(uint64(f.Size)))

	out := s.summarize(f)
	out.AvailableBytes = s.ledger.Usage(user.ID).AvailableBytes
	return &out, nil
}

// Fetch is public: anyone holding the identifier can read the file.
func (s *StorageService) Fetch(ctx context.Context, id string, mode FetchMode) (*FetchResult, error) {
	switch mode {
	case OutputRaw:
		rc, f, err := s.blobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		s.metrics.Downloaded()
		s.users.RecordTransfer(ctx, f.OwnerID, models.Download, f.Size)
		return &FetchResult{File: f, Body: rc}, nil

	case OutputPreview:
		f, err := s.blobs.GetMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		html, err := renderPreview(f, s.fileURL(f.ID))
		if err != nil {
			return nil, fmt.Errorf("render preview: %w", err)
		}
		return &FetchResult{File: f, HTML: html}, nil

	case OutputMetadata:
		f, err := s.blobs.GetMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		sum := s.summarize(f)
		return &FetchResult{File: f, Summary: &sum}, nil
	}
	return nil, fmt.Errorf("%w: unknown output mode %d", common.ErrBadRequest, mode)
}

func (s *StorageService) List(ctx context.Context, token string) ([]FileSummary, error) {
	user, err := s.users.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	list, err := s.blobs.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	out := make([]FileSummary, 0, len(list))
	for _, f := range list {
		out = append(out, s.summarize(f))
	}
	return out, nil
}

// Delete removes one of the caller's files and returns the freed bytes.
func (s *StorageService) Delete(ctx context.Context, token, id string) (int64, error) {
	user, err := s.users.Resolve(ctx, token)
	if err != nil {
		return 0, err
	}

	f, err := s.blobs.Delete(ctx, id, user.ID)
	if err != nil {
		return 0, err
	}
	s.ledger.Adjust(user.ID, f.Size)
	s.metrics.Deleted("user", f.Size)

	s.logger.Info(ctx, "file deleted", "id", id, "owner", user.ID, "freed", humanize.IBytes(uint64(f.Size)))
	return f.Size, nil
}

// BulkDelete removes all of the caller's files, or only the expired ones,
// and returns how many were removed. Without confirm nothing happens.
func (s *StorageService) BulkDelete(ctx context.Context, token string, mode BulkMode, confirm bool) (int, error) {
	user, err := s.users.Resolve(ctx, token)
	if err != nil {
		return 0, err
	}
	if !confirm {
		return 0, fmt.Errorf("%w: bulk delete needs confirmation", common.ErrBadRequest)
	}

	switch mode {
	case BulkExpired:
		return s.expiry.SweepOwner(ctx, user.ID, s.retention)
	case BulkAll:
		return s.deleteAll(ctx, user.ID)
	}
	return 0, fmt.Errorf("%w: unknown bulk delete mode %q", common.ErrBadRequest, mode)
}

func (s *StorageService) deleteAll(ctx context.Context, ownerID string) (int, error) {
	list, err := s.blobs.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkDeleteConcurrency)

	for _, f := range list {
		id := f.ID
		g.Go(func() error {
			gone, err := s.blobs.Delete(gctx, id, ownerID)
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			s.ledger.Adjust(ownerID, gone.Size)
			s.metrics.Deleted("bulk", gone.Size)
			removed.Add(1)
			return nil
		})
	}
	err = g.Wait()

	n := int(removed.Load())
	s.logger.Info(ctx, "bulk delete finished", "owner", ownerID, "removed", n, "of", len(list))
	return n, err
}

// UserInfo reports the caller's usage and transfer counters. With rotate set it also issues a
// new token, returned in UserInfo.Token; the presented token stops working.
func (s *StorageService) UserInfo(ctx context.Context, token string, rotate bool) (*UserInfo, error) {
	user, err := s.users.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	info := &UserInfo{ID: user.ID}
	if rotate {
		info.Token, err = s.users.RotateToken(ctx, user.ID, user.TokenHash)
		if err != nil {
			return nil, err
		}
	}

	info.Traffic, err = s.users.Traffic(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	u := s.ledger.Usage(user.ID)
	info.UsedBytes = u.UsedBytes
	info.LimitBytes = u.LimitBytes
	info.AvailableBytes = u.AvailableBytes
	info.FileCount = u.FileCount
	info.Usage = fmt.Sprintf("%s / %s", humanize.IBytes(uint64(u.UsedBytes)), humanize.IBytes(uint64(u.LimitBytes)))
	return info, nil
}

func (s *StorageService) Enroll(ctx context.Context, userID string) (*Enrollment, error) {
	token, created, err := s.users.Enroll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Enrollment{UserID: userID, Token: token, Created: created}, nil
}

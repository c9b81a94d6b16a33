package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
)

// ExpiryScanner deletes files that have not been accessed within the
// retention window and credits the freed bytes back to their owners.
type ExpiryScanner struct {
	blobs   *BlobStore
	ledger  *QuotaLedger
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  logging.Logger
}

func NewExpiryScanner(blobs *BlobStore, ledger *QuotaLedger, clk clock.Clock, m *metrics.Metrics, logger logging.Logger) *ExpiryScanner {
	return &ExpiryScanner{
		blobs:   blobs,
		ledger:  ledger,
		clock:   clk,
		metrics: m,
		logger:  logger.With("module", "expiry"),
	}
}

// Sweep removes every expired file and returns how many it removed.
func (s *ExpiryScanner) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	return s.sweep(ctx, "", retention)
}

// SweepOwner is Sweep restricted to one owner's files.
func (s *ExpiryScanner) SweepOwner(ctx context.Context, ownerID string, retention time.Duration) (int, error) {
	return s.sweep(ctx, ownerID, retention)
}

func (s *ExpiryScanner) sweep(ctx context.Context, ownerID string, retention time.Duration) (int, error) {
	cutoff := s.clock.Now().UTC().Add(-retention)

	candidates, err := s.blobs.ListAccessedBefore(ctx, ownerID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	// a download between the listing and the delete refreshes the file,
	// so each candidate is judged again under its lock
	expired := func(f *models.File) bool { return f.LastAccessAt.Before(cutoff) }

	removed := 0
	var freed int64
	var errs []error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		f, err := s.blobs.DeleteIf(ctx, c.ID, expired)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", c.ID, err))
			continue
		}
		if f == nil {
			continue
		}

		s.ledger.Adjust(f.OwnerID, f.Size)
		s.metrics.Deleted("expired", f.Size)
		removed++
		freed += f.Size
	}

	if removed > 0 {
		s.logger.Info(ctx, "expired files removed", "owner", ownerID, "count", removed,
			"freed", humanize.IBytes(uint64(freed)))
	}
	return removed, errors.Join(errs...)
}

// Run sweeps every interval until ctx is done.
func (s *ExpiryScanner) Run(ctx context.Context, interval, retention time.Duration) {
	s.logger.Info(ctx, "expiry scanner started", "interval", interval, "retention", retention)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "expiry scanner stopped")
			return
		case <-s.clock.After(interval):
			if _, err := s.Sweep(ctx, retention); err != nil {
				s.logger.Error(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}

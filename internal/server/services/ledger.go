package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/im7mortal/kmutex"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/files"
)

// Reservation is bytes held against a user's quota while an upload is in
// flight. It must be settled exactly once, by Commit or Release.
type Reservation struct {
	UserID string
	Amount int64

	settled bool
}

// QuotaUsage is a point-in-time view of one user's account.
type QuotaUsage struct {
	UsedBytes      int64
	FileCount      int
	LimitBytes     int64
	AvailableBytes int64
}

// account fields are written under the owner's lock and read atomically
// by TotalBytes.
type account struct {
	used  atomic.Int64
	files atomic.Int64
}

// QuotaLedger tracks committed plus reserved bytes per user. Every
// check-and-mutate on an account runs under that user's lock, so
// concurrent reservations can never push an account past maxTotalSize.
type QuotaLedger struct {
	maxFileSize  int64
	maxTotalSize int64

	locks *kmutex.Kmutex

	mu       sync.Mutex
	accounts map[string]*account
}

func NewQuotaLedger(maxFileSize, maxTotalSize int64) *QuotaLedger {
	return &QuotaLedger{
		maxFileSize:  maxFileSize,
		maxTotalSize: maxTotalSize,
		locks:        kmutex.New(),
		accounts:     make(map[string]*account),
	}
}

func (l *QuotaLedger) account(userID string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[userID]
	if !ok {
		a = &account{}
		l.accounts[userID] = a
	}
	return a
}

// Load replaces every account with totals derived from live metadata. It
// runs once at startup, before any traffic.
func (l *QuotaLedger) Load(ctx context.Context, repo files.Repository) error {
	usage, err := repo.Usage(ctx)
	if err != nil {
		return fmt.Errorf("load usage: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[string]*account, len(usage))
	for owner, u := range usage {
		a := &account{}
		a.used.Store(u.Bytes)
		a.files.Store(int64(u.Files))
		l.accounts[owner] = a
	}
	return nil
}

func (l *QuotaLedger) CheckFileSize(size int64) error {
	if size > l.maxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", common.ErrFileTooLarge, size, l.maxFileSize)
	}
	return nil
}

// Reserve holds amount bytes for userID, or fails with
// common.ErrQuotaExceeded leaving the account untouched.
func (l *QuotaLedger) Reserve(userID string, amount int64) (*Reservation, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative reservation", common.ErrBadRequest)
	}

	l.locks.Lock(userID)
	defer l.locks.Unlock(userID)

	a := l.account(userID)
	used := a.used.Load()
	if used+amount > l.maxTotalSize {
		return nil, fmt.Errorf("%w: %d of %d bytes used, %d requested",
			common.ErrQuotaExceeded, used, l.maxTotalSize, amount)
	}
	a.used.Add(amount)
	return &Reservation{UserID: userID, Amount: amount}, nil
}

// ReserveUpTo holds whatever is left of userID's quota, capped at most, for
// an upload whose size is not known in advance. It fails with
// common.ErrQuotaExceeded only when nothing is left.
func (l *QuotaLedger) ReserveUpTo(userID string, most int64) (*Reservation, error) {
	if most < 0 {
		return nil, fmt.Errorf("%w: negative reservation", common.ErrBadRequest)
	}

	l.locks.Lock(userID)
	defer l.locks.Unlock(userID)

	a := l.account(userID)
	used := a.used.Load()
	amount := min(most, l.maxTotalSize-used)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d of %d bytes used",
			common.ErrQuotaExceeded, used, l.maxTotalSize)
	}
	a.used.Add(amount)
	return &Reservation{UserID: userID, Amount: amount}, nil
}

// Commit turns the reservation into a stored file of actual bytes and
// returns any over-reservation to the pool.
func (l *QuotaLedger) Commit(r *Reservation, actual int64) {
	l.locks.Lock(r.UserID)
	defer l.locks.Unlock(r.UserID)

	if r.settled {
		return
	}
	r.settled = true

	a := l.account(r.UserID)
	a.used.Add(actual - r.Amount)
	a.files.Add(1)
}

// Release returns the whole reservation. Releasing a settled reservation
// is a no-op, so it is safe to defer.
func (l *QuotaLedger) Release(r *Reservation) {
	if r == nil {
		return
	}

	l.locks.Lock(r.UserID)
	defer l.locks.Unlock(r.UserID)

	if r.settled {
		return
	}
	r.settled = true

	l.account(r.UserID).used.Add(-r.Amount)
}

// Adjust credits freed bytes after a committed file was deleted.
func (l *QuotaLedger) Adjust(userID string, freed int64) {
	l.locks.Lock(userID)
	defer l.locks.Unlock(userID)

	a := l.account(userID)
	if a.used.Add(-freed) < 0 {
		a.used.Store(0)
	}
	if a.files.Add(-1) < 0 {
		a.files.Store(0)
	}
}

func (l *QuotaLedger) Usage(userID string) QuotaUsage {
	l.locks.Lock(userID)
	defer l.locks.Unlock(userID)

	a := l.account(userID)
	used := a.used.Load()
	avail := l.maxTotalSize - used
	if avail < 0 {
		avail = 0
	}
	return QuotaUsage{
		UsedBytes:      used,
		FileCount:      int(a.files.Load()),
		LimitBytes:     l.maxTotalSize,
		AvailableBytes: avail,
	}
}

// TotalBytes sums committed and reserved bytes over every account.
func (l *QuotaLedger) TotalBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total int64
	for _, a := range l.accounts {
		total += a.used.Load()
	}
	return total
}

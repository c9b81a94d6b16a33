package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/config"
	"github.com/dmitrijs2005/blobkeeper/internal/server/content"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/repomanager"
)

var epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	cfg   *config.Config
	rm    *repomanager.BadgerRepositoryManager
	store *content.FSStore
	clock *testclock.Clock
	svc   *StorageService
}

// newTestEnv runs the whole engine over in-memory Badger and a temp
// directory. Limits are scaled down: 200 bytes per file, 500 per user.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret-key"
	cfg.AllowedUsers = []string{"alice", "bob"}
	cfg.MaxFileSize = 200
	cfg.MaxTotalSize = 500
	cfg.UserCacheTTL = time.Hour
	for _, m := range mutate {
		m(cfg)
	}

	rm, err := repomanager.NewBadgerRepositoryManager("", true, logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rm.Close() })

	store, err := content.NewFSStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{cfg: cfg, rm: rm, store: store, clock: testclock.NewClock(epoch)}
	env.svc = env.newService(t)
	return env
}

func (e *testEnv) newService(t *testing.T) *StorageService {
	t.Helper()
	svc, err := NewStorageService(context.Background(), e.cfg, e.rm, e.store, e.clock, nil, logging.Nop{})
	require.NoError(t, err)
	return svc
}

func (e *testEnv) enroll(t *testing.T, userID string) string {
	t.Helper()
	en, err := e.svc.Enroll(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, en.Created)
	return en.Token
}

func (e *testEnv) upload(token string, data []byte) (*FileSummary, error) {
	return e.svc.Upload(context.Background(), UploadRequest{
		Token:       token,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		FileName:    "blob.txt",
		ContentType: "text/plain",
	})
}

func (e *testEnv) mustUpload(t *testing.T, token string, size int) *FileSummary {
	t.Helper()
	sum, err := e.upload(token, bytes.Repeat([]byte("x"), size))
	require.NoError(t, err)
	return sum
}

func (e *testEnv) used(userID string) int64 {
	return e.svc.Ledger().Usage(userID).UsedBytes
}

package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/files"
)

type failingCreateRepo struct {
	files.Repository
}

func (failingCreateRepo) Create(context.Context, *models.File) error {
	return errors.New("disk full")
}

func putReq(id, owner, body string) PutRequest {
	return PutRequest{ID: id, OwnerID: owner, FileName: id, ContentType: "text/plain",
		Body: strings.NewReader(body), Limit: 100}
}

func TestBlobStore_PutRejectsLiveIdentifier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.svc.Blobs()

	_, err := b.Put(ctx, putReq("AAAA2222", "alice", "first"))
	require.NoError(t, err)

	_, err = b.Put(ctx, putReq("AAAA2222", "bob", "second"))
	require.ErrorIs(t, err, common.ErrDuplicateIdentifier)

	rc, f, err := b.Get(ctx, "AAAA2222")
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, "first", buf.String())
	assert.Equal(t, "alice", f.OwnerID)
}

func TestBlobStore_MetadataFailureRemovesContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b := NewBlobStore(failingCreateRepo{env.rm.Files()}, env.store, env.clock, logging.Nop{})
	_, err := b.Put(ctx, putReq("AAAA2222", "alice", "payload"))
	require.ErrorIs(t, err, common.ErrStorageFailure)

	ok, err := env.store.Exists(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlobStore_UploadRollsBackReservation(t *testing.T) {
	env := newTestEnv(t)
	token := env.enroll(t, "alice")
	env.svc.blobs = NewBlobStore(failingCreateRepo{env.rm.Files()}, env.store, env.clock, logging.Nop{})

	_, err := env.upload(token, []byte("payload"))
	require.ErrorIs(t, err, common.ErrStorageFailure)
	assert.Equal(t, int64(0), env.used("alice"))
}

func TestBlobStore_DeleteChecksOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.svc.Blobs()

	_, err := b.Put(ctx, putReq("AAAA2222", "alice", "x"))
	require.NoError(t, err)

	_, err = b.Delete(ctx, "AAAA2222", "bob")
	require.ErrorIs(t, err, common.ErrForbidden)

	f, err := b.Delete(ctx, "AAAA2222", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.Size)

	_, err = b.Delete(ctx, "AAAA2222", "alice")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestBlobStore_DeleteIf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.svc.Blobs()

	_, err := b.Put(ctx, putReq("AAAA2222", "alice", "x"))
	require.NoError(t, err)

	f, err := b.DeleteIf(ctx, "AAAA2222", func(*models.File) bool { return false })
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = b.DeleteIf(ctx, "AAAA2222", func(*models.File) bool { return true })
	require.NoError(t, err)
	require.NotNil(t, f)

	f, err = b.DeleteIf(ctx, "AAAA2222", func(*models.File) bool { return true })
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestBlobStore_GetMissingContentIsStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.svc.Blobs()

	_, err := b.Put(ctx, putReq("AAAA2222", "alice", "x"))
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(ctx, "AAAA2222"))

	_, _, err = b.Get(ctx, "AAAA2222")
	require.ErrorIs(t, err, common.ErrStorageFailure)
}

func TestBlobStore_Reconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.svc.Blobs()

	_, err := b.Put(ctx, putReq("LIVE2222", "alice", "keep"))
	require.NoError(t, err)
	_, err = env.store.Put(ctx, "ORPHAN22", strings.NewReader("left over"), 100)
	require.NoError(t, err)

	n, err := b.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := env.store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"LIVE2222"}, keys)
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/auth"
)

func TestAuthorize(t *testing.T) {
	require.NoError(t, Authorize("alice", "alice"))
	require.ErrorIs(t, Authorize("alice", "bob"), common.ErrForbidden)
}

func TestUserRegistry_ResolveUsesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.enroll(t, "alice")

	reg := env.svc.Users()
	u, err := reg.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)

	fp, err := auth.Fingerprint(token, []byte(env.cfg.SecretKey))
	require.NoError(t, err)
	cached, ok := reg.cache.Get(fp)
	require.True(t, ok)
	assert.Equal(t, "alice", cached.ID)
}

func TestUserRegistry_RotationEvictsCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.enroll(t, "alice")
	reg := env.svc.Users()

	_, err := reg.Resolve(ctx, token)
	require.NoError(t, err)

	fresh, err := reg.RotateToken(ctx, "alice", fingerprint(t, env, token))
	require.NoError(t, err)

	_, err = reg.Resolve(ctx, token)
	require.ErrorIs(t, err, common.ErrUnauthenticated)

	u, err := reg.Resolve(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
}

func TestUserRegistry_RejectsForeignTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.enroll(t, "alice")
	reg := env.svc.Users()

	other, err := auth.GenerateToken("alice", []byte("another-secret"), time.Now())
	require.NoError(t, err)
	_, err = reg.Resolve(ctx, other)
	require.ErrorIs(t, err, common.ErrUnauthenticated)

	// well signed but never issued
	forged, err := auth.GenerateToken("alice", []byte(env.cfg.SecretKey), time.Now())
	require.NoError(t, err)
	_, err = reg.Resolve(ctx, forged)
	require.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestUserRegistry_AllowlistCheckedOnResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.enroll(t, "bob")

	narrowed := NewUserRegistry(env.rm.Users(), env.cfg.SecretKey, []string{"alice"}, 0, 0, env.clock, logging.Nop{})
	_, err := narrowed.Resolve(ctx, token)
	require.ErrorIs(t, err, common.ErrUnauthenticated)

	_, err = narrowed.RotateToken(ctx, "bob", fingerprint(t, env, token))
	require.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestUserRegistry_RotateUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Users().RotateToken(context.Background(), "alice", "no-such-fingerprint")
	require.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestUserRegistry_ConcurrentRotationsWithSameToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.enroll(t, "alice")
	reg := env.svc.Users()
	fp := fingerprint(t, env, token)

	const racers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued []string
		denied int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := reg.RotateToken(ctx, "alice", fp)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, common.ErrUnauthenticated)
				denied++
				return
			}
			issued = append(issued, fresh)
		}()
	}
	wg.Wait()

	require.Len(t, issued, 1)
	assert.Equal(t, racers-1, denied)

	u, err := reg.Resolve(ctx, issued[0])
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)

	_, err = reg.Resolve(ctx, token)
	require.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestUserRegistry_RotateWithSupersededToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.enroll(t, "alice")

	first, err := env.svc.UserInfo(ctx, token, true)
	require.NoError(t, err)
	require.NotEmpty(t, first.Token)

	_, err = env.svc.Users().RotateToken(ctx, "alice", fingerprint(t, env, token))
	require.ErrorIs(t, err, common.ErrUnauthenticated)

	_, err = env.svc.UserInfo(ctx, first.Token, false)
	require.NoError(t, err)
}

func fingerprint(t *testing.T, env *testEnv, token string) string {
	t.Helper()
	fp, err := auth.Fingerprint(token, []byte(env.cfg.SecretKey))
	require.NoError(t, err)
	return fp
}

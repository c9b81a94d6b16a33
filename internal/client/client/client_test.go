package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/", 5*time.Second)
	c.SetToken("tok")
	return c
}

func TestClient_UploadSendsMultipart(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "payload", string(data))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "AbCd2345", "size": 7, "file_name": "report.pdf"})
	})

	sum, err := c.Upload(context.Background(), "report.pdf", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "AbCd2345", sum.ID)
	assert.Equal(t, int64(7), sum.Size)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		code int
		msg  string
		want error
	}{
		{http.StatusUnauthorized, "unauthenticated", common.ErrUnauthenticated},
		{http.StatusForbidden, "forbidden", common.ErrForbidden},
		{http.StatusForbidden, "quota exceeded: 500 of 500 bytes used", common.ErrQuotaExceeded},
		{http.StatusNotFound, "not found", common.ErrorNotFound},
		{http.StatusRequestEntityTooLarge, "file too large", common.ErrFileTooLarge},
		{http.StatusTooManyRequests, "rate limited", common.ErrRateLimited},
		{http.StatusBadRequest, "bad request: nope", common.ErrBadRequest},
		{http.StatusInternalServerError, "internal server error", common.ErrorInternal},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": tt.msg})
			})
			_, err := c.List(context.Background())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_UserInfoRotateAdoptsToken(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("rotate"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "alice", "token": "fresh"})
	})

	info, err := c.UserInfo(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.ID)
	assert.Equal(t, "fresh", c.Token())
}

func TestClient_DownloadAndDelete(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/s/AbCd2345":
			assert.Equal(t, "download", r.URL.Query().Get("output"))
			_, _ = w.Write([]byte("bytes"))
		case r.Method == http.MethodDelete && r.URL.Path == "/delete/AbCd2345":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "AbCd2345", "freed_bytes": 5})
		case r.Method == http.MethodDelete && r.URL.Path == "/delete_all":
			assert.Equal(t, "yes", r.URL.Query().Get("confirm"))
			assert.Equal(t, "expired", r.URL.Query().Get("function"))
			_ = json.NewEncoder(w).Encode(map[string]any{"deleted": 2})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.Download(ctx, "AbCd2345", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "bytes", buf.String())

	freed, err := c.Delete(ctx, "AbCd2345")
	require.NoError(t, err)
	assert.Equal(t, int64(5), freed)

	deleted, err := c.DeleteAll(ctx, "expired")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = c.Download(ctx, "missing", &buf)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestClient_EnrollAndHealth(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		assert.Equal(t, "/users/alice", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": "alice", "token": "t1", "created": true})
	})

	require.NoError(t, c.Health(context.Background()))

	en, err := c.Enroll(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, en.Created)
	assert.Equal(t, "t1", en.Token)
}

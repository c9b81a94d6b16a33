package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/filex"
)

// FSStore keeps each blob as a single file under <root>/objects. Writes go
// to <root>/tmp first and are renamed into place once complete and synced,
// so a reader never observes a partial object.
type FSStore struct {
	objects string
	tmp     string
}

// syncFile is a seam so tests can skip fsync.
var syncFile = func(f *os.File) error { return f.Sync() }

// NewFSStore prepares root and discards temp files left by an interrupted
// previous run.
func NewFSStore(root string) (*FSStore, error) {
	root, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	s := &FSStore{
		objects: filepath.Join(root, "objects"),
		tmp:     filepath.Join(root, "tmp"),
	}

	if err := os.RemoveAll(s.tmp); err != nil {
		return nil, fmt.Errorf("clean temp dir: %w", err)
	}
	for _, dir := range []string{s.objects, s.tmp} {
		if _, err := filex.EnsureDir(dir); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.objects, key)
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, limit int64) (n int64, err error) {
	if err := validKey(key); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.tmp, key+".*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err = io.Copy(tmp, io.LimitReader(r, limit+1))
	if err != nil {
		return 0, err
	}
	if n > limit {
		return 0, common.ErrFileTooLarge
	}
	if err := syncFile(tmp); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return 0, err
	}

	success = true
	return n, nil
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrorNotFound
		}
		return err
	}
	return nil
}

func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.objects)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.Type().IsRegular() {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

// Package filex holds small filesystem helpers shared by the storage backends.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirPerm is the mode for directories blobkeeper creates.
const DirPerm os.FileMode = 0o750

// EnsureDir creates dir and any missing parents. A relative dir is resolved
// against the working directory; the absolute path is returned.
func EnsureDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}

	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

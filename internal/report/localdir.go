package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalDir implements Sink on a local directory tree.
type LocalDir struct {
	basePath string
}

// NewLocalDir creates a local report sink rooted at basePath.
func NewLocalDir(basePath string) (*LocalDir, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating base path: %w", err)
	}
	return &LocalDir{basePath: basePath}, nil
}

func (l *LocalDir) fullPath(key string) string {
	return filepath.Join(l.basePath, key)
}

func (l *LocalDir) Put(ctx context.Context, key string, data []byte) error {
	fullPath := l.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}
	return os.WriteFile(fullPath, data, 0644)
}

func (l *LocalDir) Get(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(l.fullPath(key))
}

func (l *LocalDir) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	searchPath := l.fullPath(prefix)

	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(l.basePath, path)
			keys = append(keys, rel)
		}
		return nil
	})

	if os.IsNotExist(err) {
		return []string{}, nil
	}
	return keys, err
}

func (l *LocalDir) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.fullPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

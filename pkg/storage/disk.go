// Package storage stores product images on a local directory or an
// S3-compatible bucket (AWS S3, MinIO, R2) and turns stored paths into
// public URLs.
//
//	storage.Connect(ctx)
//	_ = storage.Default().Put(ctx, "products/jamdani-1.jpg", data)
//	url := storage.Default().URL("products/jamdani-1.jpg")
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrInvalidPath is returned for absolute paths or paths escaping the root.
var ErrInvalidPath = errors.New("storage: invalid path")

// Disk is a storage driver.
type Disk interface {
	Put(ctx context.Context, path string, content []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	// Delete removes a file. Missing files are not an error.
	Delete(ctx context.Context, path string) error
	// URL returns the public URL for path.
	URL(path string) string
}

// Clean normalises a disk-relative path and rejects traversal.
func Clean(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidPath
	}
	return c, nil
}

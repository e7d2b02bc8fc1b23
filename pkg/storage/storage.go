// Package storage holds the file side of svgen's persistence: exported SVG
// files and anything else that is naturally a blob rather than a record.
// Backends are local disk and S3-compatible object stores.
package storage

import (
	"bytes"
	"context"
	"io"
)

// FileStore stores blobs under forward-slash paths relative to its root.
// Implementations are safe for concurrent use.
type FileStore interface {
	// Read opens path. A missing path yields an error wrapping
	// os.ErrNotExist. The caller closes the reader.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or truncates path. Data is committed on Close.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes path. Missing paths are not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths under prefix in lexical order. An empty
	// prefix lists everything.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WriteFile writes data to path in one call.
func WriteFile(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadFile reads the whole of path.
func ReadFile(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Package artifacts keeps generated SVGs. Each artifact is addressed by the
// SHA-256 of its text and filed under the model that produced it:
//
//	kv:    artifact:{model}:{sha256}   → msgpack-encoded Record
//	files: {escaped model}/{sha256}.svg
//
// Because both keys contain the model id, cache.Manager.Delete(model)
// purges them with the model.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/kv"
	"github.com/sharo-jef/webllm-svg/pkg/storage"
)

// ErrNotFound is returned by Get for unknown artifacts.
var ErrNotFound = errors.New("artifacts: not found")

// Prefix is the kv key prefix of the index.
var Prefix = kv.Key{"artifact"}

// Record describes one saved artifact.
type Record struct {
	ID        string    `msgpack:"id" json:"id"`
	Model     string    `msgpack:"model" json:"model"`
	Prompt    string    `msgpack:"prompt" json:"prompt"`
	Size      int       `msgpack:"size" json:"size"`
	Path      string    `msgpack:"path" json:"path"`
	SVG       string    `msgpack:"svg" json:"svg,omitempty"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
}

// Store saves artifacts to an index and, optionally, a file store.
type Store struct {
	index kv.Store
	files storage.FileStore
	log   *slog.Logger
	now   func() time.Time
}

// New returns a Store. files may be nil, in which case only the index is
// written.
func New(index kv.Store, files storage.FileStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{index: index, files: files, log: logger, now: time.Now}
}

// ID returns the content address of svg.
func ID(svg string) string {
	sum := sha256.Sum256([]byte(svg))
	return hex.EncodeToString(sum[:])
}

// FilePath returns where the SVG of (model, id) is written.
func FilePath(model, id string) string {
	return url.PathEscape(model) + "/" + id + ".svg"
}

func key(model, id string) kv.Key {
	return Prefix.Append(model, id)
}

// Save stores svg. Saving identical text for the same model again only
// refreshes the record.
func (s *Store) Save(ctx context.Context, model, prompt string, size int, svg string) (Record, error) {
	rec := Record{
		ID:        ID(svg),
		Model:     model,
		Prompt:    prompt,
		Size:      size,
		SVG:       svg,
		CreatedAt: s.now().UTC(),
	}
	if s.files != nil {
		rec.Path = FilePath(model, rec.ID)
		if err := storage.WriteFile(ctx, s.files, rec.Path, []byte(svg)); err != nil {
			return Record{}, fmt.Errorf("artifacts: write %s: %w", rec.Path, err)
		}
	}
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if err := s.index.Set(ctx, key(model, rec.ID), b); err != nil {
		return Record{}, fmt.Errorf("artifacts: index %s: %w", rec.ID, err)
	}
	s.log.Debug("artifacts: saved", "model", model, "id", rec.ID, "path", rec.Path)
	return rec, nil
}

// SaveResult saves the selected artifact of a successful result.
func (s *Store) SaveResult(ctx context.Context, res *generation.Result) (Record, error) {
	a, ok := res.SelectedArtifact()
	if !ok {
		return Record{}, fmt.Errorf("artifacts: result %s has no selected artifact", res.RunID)
	}
	return s.Save(ctx, res.Request.Model, res.Request.Prompt, res.Request.Size, a.SVG)
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, model, id string) (Record, error) {
	b, err := s.index.Get(ctx, key(model, id))
	if errors.Is(err, kv.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, model, id)
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("artifacts: decode %s: %w", id, err)
	}
	return rec, nil
}

// List returns the records of model, or of every model when model is "",
// newest first.
func (s *Store) List(ctx context.Context, model string) ([]Record, error) {
	prefix := Prefix
	if model != "" {
		prefix = Prefix.Append(model)
	}
	var out []Record
	for e, err := range s.index.List(ctx, prefix) {
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			s.log.Warn("artifacts: skipping malformed record", "key", e.Key.String(), "error", err)
			continue
		}
		out = append(out, rec)
	}
	slices.SortStableFunc(out, func(a, b Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Export copies the SVG of rec to dst under the same path layout.
func Export(ctx context.Context, rec Record, dst storage.FileStore) (string, error) {
	p := rec.Path
	if p == "" {
		p = FilePath(rec.Model, rec.ID)
	}
	if err := storage.WriteFile(ctx, dst, p, []byte(rec.SVG)); err != nil {
		return "", fmt.Errorf("artifacts: export %s: %w", p, err)
	}
	return p, nil
}

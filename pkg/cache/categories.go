package cache

import (
	"context"
	"errors"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/sharo-jef/webllm-svg/pkg/kv"
	"github.com/sharo-jef/webllm-svg/pkg/storage"
)

// KVCategory is the part of a kv.Store below Prefix.
type KVCategory struct {
	Label  string
	Store  kv.Store
	Prefix kv.Key
}

func (c *KVCategory) Name() string { return c.Label }

func (c *KVCategory) Clear(ctx context.Context) error {
	_, err := c.Store.DeletePrefix(ctx, c.Prefix)
	return err
}

func (c *KVCategory) PurgeModel(ctx context.Context, model string) (int, error) {
	var keys []kv.Key
	for e, err := range c.Store.List(ctx, c.Prefix) {
		if err != nil {
			return 0, err
		}
		if e.Key.HasSegment(model) {
			keys = append(keys, e.Key)
		}
	}
	for i, k := range keys {
		if err := c.Store.Delete(ctx, k); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

// FileCategory is the part of a FileStore below Prefix.
type FileCategory struct {
	Label  string
	Store  storage.FileStore
	Prefix string
}

func (c *FileCategory) Name() string { return c.Label }

func (c *FileCategory) Clear(ctx context.Context) error {
	_, err := c.deleteWhere(ctx, func(string) bool { return true })
	return err
}

// PurgeModel removes the files below a directory named after the
// path-escaped model id.
func (c *FileCategory) PurgeModel(ctx context.Context, model string) (int, error) {
	dir := url.PathEscape(model)
	return c.deleteWhere(ctx, func(p string) bool {
		return slices.Contains(strings.Split(path.Dir(p), "/"), dir)
	})
}

func (c *FileCategory) deleteWhere(ctx context.Context, match func(string) bool) (int, error) {
	paths, err := c.Store.List(ctx, c.Prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, p := range paths {
		if !match(p) {
			continue
		}
		if err := c.Store.Delete(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// FuncCategory clears through an arbitrary function.
type FuncCategory struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (c *FuncCategory) Name() string { return c.Label }

func (c *FuncCategory) Clear(ctx context.Context) error { return c.Fn(ctx) }

// Lister enumerates cached models.
type Lister interface {
	ListCached(ctx context.Context) ([]string, error)
}

// ModelCategory deletes every model the backend lists.
type ModelCategory struct {
	Label   string
	Lister  Lister
	Backend Backend
}

func (c *ModelCategory) Name() string { return c.Label }

func (c *ModelCategory) Clear(ctx context.Context) error {
	models, err := c.Lister.ListCached(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range models {
		if err := c.Backend.DeleteCached(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Purger   = (*KVCategory)(nil)
	_ Purger   = (*FileCategory)(nil)
	_ Category = (*FuncCategory)(nil)
	_ Category = (*ModelCategory)(nil)
)

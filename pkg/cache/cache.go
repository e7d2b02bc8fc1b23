// Package cache tracks which models are resident locally and clears the
// stores that hold data derived from them.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Backend reports and removes local model copies. inference.Adapter
// satisfies it.
type Backend interface {
	HasCached(ctx context.Context, model string) (bool, error)
	DeleteCached(ctx context.Context, model string) error
}

// Category is one persistent store that DeleteAll wipes.
type Category interface {
	Name() string
	Clear(ctx context.Context) error
}

// Purger is a Category holding entries filed under model ids. Delete(model)
// purges every entry with a key segment equal to the model id, so deleting
// "phi3" leaves "phi3:mini" alone.
type Purger interface {
	Category
	PurgeModel(ctx context.Context, model string) (int, error)
}

// OpError is a failed cache operation.
type OpError struct {
	Op       string
	Model    string
	Category string
	Err      error
}

func (e *OpError) Error() string {
	msg := "cache: " + e.Op
	if e.Model != "" {
		msg += " " + e.Model
	}
	if e.Category != "" {
		msg += " [" + e.Category + "]"
	}
	return msg + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Options configures a Manager.
type Options struct {
	Categories []Category
	Logger     *slog.Logger
}

// Manager fronts the inference backend's cache operations and keeps an
// in-memory index of resident models.
type Manager struct {
	backend Backend
	cats    []Category
	log     *slog.Logger

	mu       sync.RWMutex
	resident map[string]struct{}

	checks singleflight.Group
}

// New returns a manager with an empty index.
func New(backend Backend, opts Options) *Manager {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Manager{
		backend:  backend,
		cats:     slices.Clone(opts.Categories),
		log:      lg,
		resident: make(map[string]struct{}),
	}
}

// Register adds categories after construction.
func (m *Manager) Register(cats ...Category) {
	m.mu.Lock()
	m.cats = append(m.cats, cats...)
	m.mu.Unlock()
}

// Categories returns the registered category names.
func (m *Manager) Categories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.cats))
	for i, c := range m.cats {
		names[i] = c.Name()
	}
	return names
}

// Has asks the backend whether model is cached and updates the index with
// the answer. Concurrent checks of the same model share one backend call,
// which outlives the cancellation of whichever caller started it.
func (m *Manager) Has(ctx context.Context, model string) (bool, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := m.checks.Do(model, func() (any, error) {
		return m.backend.HasCached(shared, model)
	})
	if err != nil {
		return false, &OpError{Op: "has", Model: model, Err: err}
	}
	ok := v.(bool)
	m.mu.Lock()
	if ok {
		m.resident[model] = struct{}{}
	} else {
		delete(m.resident, model)
	}
	m.mu.Unlock()
	return ok, nil
}

// Delete removes model from the backend, drops it from the index and purges
// derived entries in every Purger category. A backend failure returns
// before anything else is touched; purge failures are joined.
func (m *Manager) Delete(ctx context.Context, model string) error {
	if err := m.backend.DeleteCached(ctx, model); err != nil {
		return &OpError{Op: "delete", Model: model, Err: err}
	}
	m.mu.Lock()
	delete(m.resident, model)
	cats := slices.Clone(m.cats)
	m.mu.Unlock()

	var errs []error
	for _, c := range cats {
		p, ok := c.(Purger)
		if !ok {
			continue
		}
		n, err := p.PurgeModel(ctx, model)
		if err != nil {
			errs = append(errs, &OpError{Op: "purge", Model: model, Category: c.Name(), Err: err})
			continue
		}
		if n > 0 {
			m.log.Info("cache: purged entries", "model", model, "category", c.Name(), "count", n)
		}
	}
	return errors.Join(errs...)
}

// DeleteAll clears every category, each independently, and empties the
// index. It is best effort: all categories are attempted and their failures
// joined.
func (m *Manager) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	cats := slices.Clone(m.cats)
	clear(m.resident)
	m.mu.Unlock()

	var errs []error
	for _, c := range cats {
		if err := c.Clear(ctx); err != nil {
			m.log.Warn("cache: clear failed", "category", c.Name(), "error", err)
			errs = append(errs, &OpError{Op: "clear", Category: c.Name(), Err: err})
			continue
		}
		m.log.Debug("cache: cleared", "category", c.Name())
	}
	return errors.Join(errs...)
}

// MarkResident records model as cached. The orchestrator calls it after a
// successful generation.
func (m *Manager) MarkResident(model string) {
	m.mu.Lock()
	m.resident[model] = struct{}{}
	m.mu.Unlock()
}

// Resident reports whether model is in the index. It does not consult the
// backend.
func (m *Manager) Resident(model string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.resident[model]
	return ok
}

// IDs returns the indexed models in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.resident))
	for id := range m.resident {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Seed adds models to the index, e.g. from an adapter listing at startup.
func (m *Manager) Seed(models ...string) {
	m.mu.Lock()
	for _, id := range models {
		m.resident[id] = struct{}{}
	}
	m.mu.Unlock()
}

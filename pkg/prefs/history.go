package prefs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sharo-jef/webllm-svg/pkg/kv"
)

// HistoryEntry is one submitted prompt.
type HistoryEntry struct {
	Prompt string    `msgpack:"prompt" json:"prompt"`
	At     time.Time `msgpack:"at" json:"at"`
}

// History is a bounded most-recent-first prompt list. Prompts are unique by
// exact text; adding an existing prompt moves it to the front.
type History struct {
	s        *Store
	capacity int
}

// List returns the entries, newest first.
func (h *History) List(ctx context.Context) ([]HistoryEntry, error) {
	b, err := h.s.kv.Get(ctx, h.s.key(keyHistory))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []HistoryEntry
	if err := msgpack.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("prefs: decode history: %w", err)
	}
	return entries, nil
}

// Prompts returns the prompt texts, newest first.
func (h *History) Prompts(ctx context.Context) ([]string, error) {
	entries, err := h.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Prompt
	}
	return out, nil
}

// Add puts prompt at the front. Empty prompts are ignored.
func (h *History) Add(ctx context.Context, prompt string) error {
	if prompt == "" {
		return nil
	}
	entries, err := h.List(ctx)
	if err != nil {
		return err
	}
	entries = slices.DeleteFunc(entries, func(e HistoryEntry) bool { return e.Prompt == prompt })
	entries = slices.Insert(entries, 0, HistoryEntry{Prompt: prompt, At: h.s.now().UTC()})
	if len(entries) > h.capacity {
		entries = entries[:h.capacity]
	}
	return h.save(ctx, entries)
}

// Remove deletes prompt if present.
func (h *History) Remove(ctx context.Context, prompt string) error {
	entries, err := h.List(ctx)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(entries, func(e HistoryEntry) bool { return e.Prompt == prompt })
	return h.save(ctx, kept)
}

func (h *History) Clear(ctx context.Context) error {
	return h.s.kv.Delete(ctx, h.s.key(keyHistory))
}

func (h *History) save(ctx context.Context, entries []HistoryEntry) error {
	if len(entries) == 0 {
		return h.Clear(ctx)
	}
	b, err := msgpack.Marshal(entries)
	if err != nil {
		return err
	}
	return h.s.kv.Set(ctx, h.s.key(keyHistory), b)
}

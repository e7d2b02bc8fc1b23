// Package prefs persists user preferences between svgen runs: the prompt
// history, the last selected model and the unsent draft prompt.
//
// Key layout (relative to the scope, default "prefs"):
//
//	{scope}:history     → msgpack-encoded []HistoryEntry, newest first
//	{scope}:last_model  → model id
//	{scope}:draft       → draft prompt text
package prefs

import (
	"context"
	"errors"
	"time"

	"github.com/sharo-jef/webllm-svg/pkg/kv"
)

// HistoryCapacity is the number of prompts kept.
const HistoryCapacity = 50

const (
	keyHistory   = "history"
	keyLastModel = "last_model"
	keyDraft     = "draft"
)

// Store is a string key-value view over a kv.Store scope.
type Store struct {
	kv    kv.Store
	scope kv.Key
	now   func() time.Time
}

// New returns a Store under scope. An empty scope means {"prefs"}.
func New(store kv.Store, scope ...string) *Store {
	if len(scope) == 0 {
		scope = []string{"prefs"}
	}
	return &Store{kv: store, scope: kv.Key(scope), now: time.Now}
}

// Scope is the key prefix of every entry of the store.
func (s *Store) Scope() kv.Key { return s.scope }

func (s *Store) key(name string) kv.Key {
	return s.scope.Append(name)
}

// Get returns the value of key; ok is false when it is unset.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	b, err := s.kv.Get(ctx, s.key(key))
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, s.key(key), []byte(value))
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, s.key(key))
}

// LastModel returns the last model the user selected, or "".
func (s *Store) LastModel(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, keyLastModel)
	return v, err
}

func (s *Store) SetLastModel(ctx context.Context, model string) error {
	return s.Set(ctx, keyLastModel, model)
}

// Draft returns the saved unsent prompt, or "".
func (s *Store) Draft(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, keyDraft)
	return v, err
}

// SetDraft saves text as the draft. Empty text clears it.
func (s *Store) SetDraft(ctx context.Context, text string) error {
	if text == "" {
		return s.ClearDraft(ctx)
	}
	return s.Set(ctx, keyDraft, text)
}

// ClearDraft removes the draft; called after a prompt is submitted.
func (s *Store) ClearDraft(ctx context.Context) error {
	return s.Remove(ctx, keyDraft)
}

// History returns the prompt history of s.
func (s *Store) History() *History {
	return &History{s: s, capacity: HistoryCapacity}
}

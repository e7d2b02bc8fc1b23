// Package kv is the key-value layer behind svgen's persistent state: prompt
// history, the last selected model, the unsent draft and the content-addressed
// artifact index all live in a Store.
//
// Keys are hierarchical ([]string) and encoded with a separator byte
// (default ':'). Segments may contain the separator; it is escaped on write,
// which matters because model identifiers such as "llama3.2:3b" carry one.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path, e.g. Key{"prefs", "history"}.
type Key []string

// String joins the raw segments with ':' for display only.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// HasSegment reports whether any segment of k equals seg.
func (k Key) HasSegment(seg string) bool {
	return slices.Contains(k, seg)
}

// Append returns a new key with segs appended; k is not modified.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	out = append(out, k...)
	return append(out, segs...)
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates over entries below prefix in lexicographic encoded order.
	// An empty prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// DeletePrefix removes every entry below prefix and reports how many
	// were removed. An empty prefix wipes the store.
	DeletePrefix(ctx context.Context, prefix Key) (int, error)

	Close() error
}

// DefaultSeparator joins encoded key segments.
const DefaultSeparator byte = ':'

// Options configures key encoding.
type Options struct {
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 && o.Separator != '%' {
		return o.Separator
	}
	return DefaultSeparator
}

// escape percent-encodes '%' and the separator so a segment never splits.
func escape(seg string, sep byte) string {
	if strings.IndexByte(seg, sep) < 0 && strings.IndexByte(seg, '%') < 0 {
		return seg
	}
	var b strings.Builder
	b.Grow(len(seg) + 4)
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if c == sep || c == '%' {
			b.WriteByte('%')
			b.WriteString(strconv.FormatUint(uint64(c)>>4, 16))
			b.WriteString(strconv.FormatUint(uint64(c)&0xf, 16))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unescape(seg string) string {
	if strings.IndexByte(seg, '%') < 0 {
		return seg
	}
	var b strings.Builder
	b.Grow(len(seg))
	for i := 0; i < len(seg); i++ {
		if seg[i] == '%' && i+2 < len(seg) {
			if v, err := strconv.ParseUint(seg[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(seg[i])
	}
	return b.String()
}

func (o *Options) encode(k Key) []byte {
	s := o.sep()
	parts := make([]string, len(k))
	for i, seg := range k {
		parts[i] = escape(seg, s)
	}
	return []byte(strings.Join(parts, string(s)))
}

func (o *Options) decode(b []byte) Key {
	parts := strings.Split(string(b), string(o.sep()))
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = unescape(p)
	}
	return k
}

// prefixBytes returns the scan prefix for p; a trailing separator keeps
// "a:b" from matching "a:bc". Nil means scan everything.
func (o *Options) prefixBytes(p Key) []byte {
	if len(p) == 0 {
		return nil
	}
	return append(o.encode(p), o.sep())
}

func sprintf(f string, v ...any) string {
	return strings.TrimRight(fmt.Sprintf(f, v...), "\n")
}

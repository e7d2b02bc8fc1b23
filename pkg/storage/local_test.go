package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLocalRoundTrip(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := WriteFile(ctx, s, "llama3.2%3A3b/abc.svg", []byte("<svg/>")); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(ctx, s, "llama3.2%3A3b/abc.svg")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<svg/>" {
		t.Fatalf("got %q", got)
	}

	if err := WriteFile(ctx, s, "llama3.2%3A3b/abc.svg", []byte("x")); err != nil {
		t.Fatal(err)
	}
	got, _ = ReadFile(ctx, s, "llama3.2%3A3b/abc.svg")
	if string(got) != "x" {
		t.Fatalf("after overwrite got %q", got)
	}
}

func TestLocalMissing(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if _, err := s.Read(ctx, "nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Read err = %v", err)
	}
	ok, err := s.Exists(ctx, "nope")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "nope"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestLocalWriteIsAtomic(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	w, err := s.Write(ctx, "a/b.svg")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("partial"))
	if ok, _ := s.Exists(ctx, "a/b.svg"); ok {
		t.Fatal("file visible before Close")
	}
	if names, _ := s.List(ctx, ""); len(names) != 0 {
		t.Fatalf("List shows temp file: %v", names)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "a/b.svg"); !ok {
		t.Fatal("file missing after Close")
	}
}

func TestLocalList(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	for _, p := range []string{"m1/b.svg", "m1/a.svg", "m2/c.svg", "top.txt"} {
		if err := WriteFile(ctx, s, p, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"m1/a.svg", "m1/b.svg", "m2/c.svg", "top.txt"}; !slices.Equal(all, want) {
		t.Fatalf("List all = %v, want %v", all, want)
	}
	m1, _ := s.List(ctx, "m1/")
	if want := []string{"m1/a.svg", "m1/b.svg"}; !slices.Equal(m1, want) {
		t.Fatalf("List m1/ = %v, want %v", m1, want)
	}
}

func TestNewLocalCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("root = %v, %v", info, err)
	}
}

// Copyright 2025 Certen Protocol

package saltseed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/certen/skipledger/pkg/hashutil"
)

func TestLoadRejectsEmpty(t *testing.T) {
	if _, err := Load(nil); err != ErrEmpty {
		t.Fatalf("Load(nil) err = %v, want ErrEmpty", err)
	}
	if _, err := Load([]byte{}); err != ErrEmpty {
		t.Fatalf("Load([]byte{}) err = %v, want ErrEmpty", err)
	}
}

func TestLoadIsDeterministic(t *testing.T) {
	a, err := Load([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Value() != b.Value() {
		t.Fatalf("two loads of the same secret produced different seeds")
	}

	c, err := Load([]byte("a different secret entirely"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Value() == c.Value() {
		t.Fatalf("two loads of different secrets produced the same seed")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SKIPLEDGER_TEST_SEED", "deadbeef")
	s, err := LoadFromEnv("SKIPLEDGER_TEST_SEED")
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	want := hashutil.Digest([]byte("deadbeef"))
	if s.Value() != want {
		t.Fatalf("Value() = %x, want %x", s.Value(), want)
	}
}

func TestLoadFromEnvMissing(t *testing.T) {
	if _, err := LoadFromEnv("SKIPLEDGER_TEST_SEED_UNSET"); err == nil {
		t.Fatal("expected error for unset environment variable")
	}
}

func TestLoadFromFileTrimsTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed")
	writeFile(t, path, "my-secret-seed\n")

	s, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	want := hashutil.Digest([]byte("my-secret-seed"))
	if s.Value() != want {
		t.Fatalf("Value() = %x, want %x", s.Value(), want)
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed")
	writeFile(t, path, "\n")

	if _, err := LoadFromFile(path); err != ErrEmpty {
		t.Fatalf("LoadFromFile err = %v, want ErrEmpty", err)
	}
}

func TestDropZeroesAndDisablesValue(t *testing.T) {
	s, err := Load([]byte("seed material"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Drop()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Value() to panic after Drop")
		}
	}()
	s.Value()
}

func TestDropIsIdempotent(t *testing.T) {
	s, err := Load([]byte("seed material"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Drop()
	s.Drop() // must not panic
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

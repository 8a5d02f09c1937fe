// Copyright 2025 Certen Protocol
//
// saltseed owns the process-wide secret S that pkg/sourcerow.DeriveSalt
// uses to derive per-cell salts (§3, §5, §9). S is loaded once at process
// start from an operator-supplied source — an environment variable or a
// file path, never an inline configuration value — and is never logged,
// serialized, or returned in any form other than the opaque Seed handle.
// Only Drop zeroes it; every other accessor hands out the hash by value
// for the lifetime of a single DeriveSalt call.
package saltseed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/certen/skipledger/pkg/hashutil"
)

// ErrEmpty is returned when a seed source yields no bytes.
var ErrEmpty = errors.New("saltseed: seed source is empty")

// Seed holds the process-wide secret S in memory for the lifetime of the
// ledger process. The zero value is not usable; construct with Load,
// LoadFromEnv, or LoadFromFile.
type Seed struct {
	value  hashutil.Hash
	loaded bool
}

// Load derives a Seed from raw secret bytes. raw is hashed into the fixed
// 32-byte width immediately; the caller's slice is never retained, and the
// caller is responsible for zeroing it afterward if it came from a source
// the caller controls directly.
func Load(raw []byte) (*Seed, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	s := &Seed{value: hashutil.Digest(raw), loaded: true}
	lockMemory(&s.value)
	return s, nil
}

// LoadFromEnv reads the seed from the named environment variable. This is
// the recommended source for production deployments: the secret never
// touches a configuration file or command-line argument.
func LoadFromEnv(name string) (*Seed, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("saltseed: environment variable %q is not set", name)
	}
	return Load([]byte(raw))
}

// LoadFromFile reads the seed from a file, trimming a single trailing
// newline if present (the common shape for a secret mounted by an
// orchestrator as a single-line file).
func LoadFromFile(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("saltseed: reading seed file: %w", err)
	}
	defer zeroBytes(raw)
	trimmed := strings.TrimSuffix(string(raw), "\n")
	trimmed = strings.TrimSuffix(trimmed, "\r")
	if trimmed == "" {
		return nil, ErrEmpty
	}
	return Load([]byte(trimmed))
}

// Value returns the underlying hash for use by sourcerow.DeriveSalt. It
// panics if called after Drop: a dropped seed must never be consulted
// again within the same process.
func (s *Seed) Value() hashutil.Hash {
	if !s.loaded {
		panic("saltseed: Value called on a dropped or zero Seed")
	}
	return s.value
}

// Drop zeroes the seed in place and marks it unusable. Callers should defer
// Drop immediately after a successful Load in long-running processes that
// rotate seeds, and unconditionally at shutdown.
func (s *Seed) Drop() {
	if !s.loaded {
		return
	}
	unlockMemory(&s.value)
	for i := range s.value {
		s.value[i] = 0
	}
	s.loaded = false
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

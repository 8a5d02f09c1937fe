// Copyright 2025 Certen Protocol

//go:build !linux && !darwin

package saltseed

import "github.com/certen/skipledger/pkg/hashutil"

// lockMemory and unlockMemory are no-ops on platforms without an mlock
// equivalent wired up here; the seed is still held in ordinary process
// memory and zeroed on Drop.
func lockMemory(h *hashutil.Hash)   {}
func unlockMemory(h *hashutil.Hash) {}

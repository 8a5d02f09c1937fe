// Copyright 2025 Certen Protocol

//go:build linux || darwin

package saltseed

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/certen/skipledger/pkg/hashutil"
)

// lockMemory pins h's backing memory so the kernel never swaps the seed to
// disk, and (on Linux) excludes it from core dumps. Neither call has a
// correctness dependency: if the platform refuses (unprivileged process,
// restrictive seccomp policy), the seed is still held and used — these are
// best-effort hardening, not a security boundary the rest of the package
// relies on.
func lockMemory(h *hashutil.Hash) {
	b := seedBytes(h)
	_ = unix.Mlock(b)
	madviseDontDump(b)
}

func unlockMemory(h *hashutil.Hash) {
	b := seedBytes(h)
	_ = unix.Munlock(b)
}

func seedBytes(h *hashutil.Hash) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(h)), len(h))
}

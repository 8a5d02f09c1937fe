// Copyright 2025 Certen Protocol

//go:build linux

package saltseed

import "golang.org/x/sys/unix"

func madviseDontDump(b []byte) {
	_ = unix.Madvise(b, unix.MADV_DONTDUMP)
}

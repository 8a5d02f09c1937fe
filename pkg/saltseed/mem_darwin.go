// Copyright 2025 Certen Protocol

//go:build darwin

package saltseed

// MADV_DONTDUMP has no Darwin equivalent exposed by golang.org/x/sys/unix;
// mlock alone (mem_unix.go) is the hardening available on this platform.
func madviseDontDump(b []byte) {}

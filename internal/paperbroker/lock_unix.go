//go:build unix

package paperbroker

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes an OS advisory exclusive lock on path for the
// duration of a ledger modification, so a second process instance appending
// to or resolving the same ledger serializes with this one. Returns a
// function that releases the lock.
func flockExclusive(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// Package lock implements the Process-lock Manager (spec.md §4.10): before
// any code path opens an install flow for a bundle, it takes a per-path
// lock keyed by an MD5 hash of the bundle's absolute path, so two instances
// of the tool can never race on the same bundle. Adapted from, but kept
// distinct from, internal/daemon's PID handling -- grounded on the same
// teacher pkg/daemon/pidfile.go AcquirePID/IsProcessAlive shape, applied at
// per-bundle rather than single-daemon-process granularity.
package lock

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned when another live process already holds the lock.
var ErrHeld = errors.New("lock: held by another running process")

// Lock is a held per-bundle-path process lock.
type Lock struct {
	path string
}

// Acquire takes the lock for bundlePath under lockDir, named
// "drop-window-<md5(bundlePath)>.lock" per spec.md §4.10. If an existing
// lock file names a dead process, it is taken over; if it names a live
// process, ErrHeld is returned.
func Acquire(lockDir, bundlePath string) (*Lock, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	if abs, err := filepath.Abs(bundlePath); err == nil {
		bundlePath = abs
	}
	sum := md5.Sum([]byte(bundlePath))
	name := fmt.Sprintf("drop-window-%s.lock", hex.EncodeToString(sum[:]))
	path := filepath.Join(lockDir, name)

	if existing, err := readPID(path); err == nil {
		if isAlive(existing) {
			return nil, ErrHeld
		}
		os.Remove(path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write temp lock file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename lock file: %w", err)
	}

	return &Lock{path: path}, nil
}

// Release removes the lock file (spec.md §4.10: "Release on window close
// or on process exit").
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

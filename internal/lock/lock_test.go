package lock

import (
	"os"
	"testing"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir, "/home/user/Downloads/App.AppImage")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(l.path); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(l.path); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed, stat err = %v", err)
	}
}

func TestAcquireConflictWhileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	bundle := "/home/user/Downloads/App.AppImage"

	first, err := Acquire(dir, bundle)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(dir, bundle); err != ErrHeld {
		t.Fatalf("second Acquire = %v, want ErrHeld", err)
	}
}

func TestAcquireDifferentBundlesDoNotConflict(t *testing.T) {
	dir := t.TempDir()
	a, err := Acquire(dir, "/a.AppImage")
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer a.Release()

	b, err := Acquire(dir, "/b.AppImage")
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	defer b.Release()

	if a.path == b.path {
		t.Fatalf("different bundle paths produced the same lock file")
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	bundle := "/stale.AppImage"

	l, err := Acquire(dir, bundle)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	stalePath := l.path
	if err := os.WriteFile(stalePath, []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	taken, err := Acquire(dir, bundle)
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	defer taken.Release()
}

package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %s", lock.Path())
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if !strings.HasPrefix(string(content), fmt.Sprintf("pid=%d\n", os.Getpid())) {
		t.Errorf("Lock file should start with our pid, got %q", content)
	}

	h := ReadHolder(lock.Path())
	if h.PID != os.Getpid() || !h.Running || h.StartedAt.IsZero() {
		t.Errorf("unexpected holder %+v", h)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("Second lock acquisition should have failed")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	if lockErr.Holder.PID != os.Getpid() {
		t.Errorf("expected holder pid %d to survive the failed attempt, got %d", os.Getpid(), lockErr.Holder.PID)
	}
	msg := err.Error()
	if !strings.Contains(msg, "Another RagePipe instance is already running") || !strings.Contains(msg, dir) {
		t.Errorf("Error message should explain the conflict: %s", msg)
	}
}

func TestLockRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("should reacquire after release: %v", err)
	}
	again.Release()
}

func TestAcquireLockCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock in new directory: %v", err)
	}
	lock.Release()
}

func TestReadHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")

	if h := ReadHolder(path); h.PID != 0 {
		t.Errorf("missing file should give zero holder, got %+v", h)
	}
	os.WriteFile(path, []byte("garbage"), 0644)
	if h := ReadHolder(path); h.PID != 0 || h.String() != "unknown process" {
		t.Errorf("unparsable file should give zero holder, got %+v", h)
	}
	// PIDs this large are never allocated.
	os.WriteFile(path, []byte("pid=99999999\nstarted=2024-01-02T03:04:05Z\n"), 0644)
	h := ReadHolder(path)
	if h.PID != 99999999 || h.Running {
		t.Errorf("expected stale holder, got %+v", h)
	}
	if !strings.Contains(h.String(), "stale") || !strings.Contains(h.String(), "2024-01-02T03:04:05Z") {
		t.Errorf("unexpected holder description %q", h.String())
	}
}

package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriter_WriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.md")

	w := NewWriter(nil)
	if err := w.Write(path, []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}

func TestWriter_WriteCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "artifact.md")

	w := NewWriter(nil)
	if err := w.Write(path, []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file missing: %v", err)
	}
}

func TestWriter_OverwritePreservesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.md")

	w := NewWriter(nil)
	if err := w.Write(path, []byte("version one")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := w.Write(path, []byte("version two")); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	cur, _ := os.ReadFile(path)
	if string(cur) != "version two" {
		t.Errorf("current = %q, want version two", cur)
	}
	bak, err := os.ReadFile(path + BackupSuffix)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(bak) != "version one" {
		t.Errorf("backup = %q, want version one", bak)
	}
}

func TestWriter_FirstWriteHasNoBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.md")

	w := NewWriter(nil)
	if err := w.Write(path, []byte("v1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + BackupSuffix); !os.IsNotExist(err) {
		t.Error("backup exists for a first write")
	}
}

func TestWriter_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.md")

	w := NewWriter(nil)
	if err := w.Write(path, []byte("v1")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") || strings.HasSuffix(e.Name(), ".lock") {
			t.Errorf("leftover file: %s", e.Name())
		}
	}
}

func TestWriter_LockBlocksSecondWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.md")

	// Simulate a live concurrent writer by pre-creating a fresh lock.
	if err := os.WriteFile(path+".lock", []byte("pid=1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := NewWriter(nil)
	err := w.Write(path, []byte("x"))
	if !errors.Is(err, ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}

func TestWriter_StaleLockTakenOver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.md")
	lockPath := path + ".lock"

	if err := os.WriteFile(lockPath, []byte("pid=1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	w := NewWriter(nil)
	if err := w.Write(path, []byte("x")); err != nil {
		t.Fatalf("stale lock should be taken over, got: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock not released after write")
	}
}

// --- change control ---

func TestAppendChangeControl(t *testing.T) {
	out := AppendChangeControl([]byte("# Doc\n\nbody\n"), ChangeControlEntry{
		Version: 3,
		Date:    "2026-08-26",
		Author:  "(pending)",
	})

	s := string(out)
	if !strings.HasPrefix(s, "# Doc\n") {
		t.Errorf("content head changed: %q", s)
	}
	if !strings.Contains(s, "<!-- change-control: version=3 date=2026-08-26 author=(pending) -->") {
		t.Errorf("trailer missing: %q", s)
	}
}

func TestAppendChangeControl_AddsNewlineWhenMissing(t *testing.T) {
	out := AppendChangeControl([]byte("no trailing newline"), ChangeControlEntry{Version: 1})
	if !strings.Contains(string(out), "no trailing newline\n<!-- change-control:") {
		t.Errorf("newline not inserted before trailer: %q", out)
	}
}

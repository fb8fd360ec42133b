package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)

	started := time.Now().Add(-time.Second)
	id, err := s.Record(RunRecord{
		Operation: "assemble",
		StartedAt: started,
		ExitCode:  0,
		Detail:    map[string]int{"sources": 4},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if id == 0 {
		t.Error("Record returned zero id")
	}

	runs, err := s.Recent("", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.Operation != "assemble" || r.ExitCode != 0 {
		t.Errorf("run = %+v", r)
	}
	if !strings.Contains(r.Detail, `"sources":4`) {
		t.Errorf("Detail = %q", r.Detail)
	}
}

func TestRecentFiltersByOperation(t *testing.T) {
	s := openTestStore(t)

	for _, op := range []string{"assemble", "verify-claims", "assemble"} {
		if _, err := s.Record(RunRecord{Operation: op, StartedAt: time.Now()}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	runs, err := s.Recent("assemble", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Operation != "assemble" {
			t.Errorf("filtered list includes %s", r.Operation)
		}
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.Record(RunRecord{
			Operation: "plan-merge",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			ExitCode:  i,
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	runs, err := s.Recent("", 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want limit 2", len(runs))
	}
	if runs[0].ExitCode != 2 || runs[1].ExitCode != 1 {
		t.Errorf("order = %d, %d; want newest first", runs[0].ExitCode, runs[1].ExitCode)
	}
}

func TestNewCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "ledger")
	s, err := New(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "ledger.db")); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestNewEmptyDataDirUsesDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(home, ".shepherd", "ledger.db")); err != nil {
		t.Errorf("database not under default dir: %v", err)
	}
}

func TestNewUnopenableDatabase(t *testing.T) {
	dir := t.TempDir()
	// Occupy the database path with a directory so the first pragma
	// fails and New has to bail out.
	if err := os.MkdirAll(filepath.Join(dir, "ledger.db"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if _, err := New(Config{DataDir: dir}); err == nil {
		t.Error("New succeeded with a directory at the database path")
	}
}

func TestRecordWithoutDetail(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Record(RunRecord{Operation: "apply-merge", StartedAt: time.Now(), ExitCode: 2}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	runs, err := s.Recent("apply-merge", 1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if runs[0].Detail != "" {
		t.Errorf("Detail = %q, want empty", runs[0].Detail)
	}
}

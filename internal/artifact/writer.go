// Package artifact persists assembled artifacts and applied merges.
//
// Writes are atomic: content lands in a temporary file in the target
// directory, is fsynced, and is renamed over the target — readers never
// observe a partially written file. An advisory lock file keeps two
// simultaneous assembly runs from interleaving writes, and the prior
// artifact is preserved as a backup before each overwrite.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// ErrLocked is returned when another writer holds the advisory lock.
var ErrLocked = errors.New("artifact is locked by another writer")

// BackupSuffix is appended to the prior artifact's filename.
const BackupSuffix = ".bak"

// staleLockAge is how old a lock file must be before a new writer may
// take it over. Locks are held only for the duration of a write, so
// anything this old belongs to a dead process.
const staleLockAge = 10 * time.Minute

// Writer performs atomic, lock-guarded file writes.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{logger: logger}
}

// Write atomically replaces path with content, backing up the previous
// version first. The write either succeeds or fails visibly — there is
// no durability story beyond that.
func (w *Writer) Write(path string, content []byte) error {
	unlock, err := w.lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := w.backup(path); err != nil {
		return err
	}
	return atomicWrite(path, content)
}

// WriteNoBackup atomically writes path without preserving a backup.
// Used for brand-new targets where there is nothing to preserve.
func (w *Writer) WriteNoBackup(path string, content []byte) error {
	unlock, err := w.lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	return atomicWrite(path, content)
}

// lock takes the advisory lock for path, returning the release
// function. A lock file older than staleLockAge is considered
// abandoned and taken over.
func (w *Writer) lock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating target directory: %w", err)
	}

	lockPath := path + ".lock"
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d locked_at=%s\n", os.Getpid(), timeNow().UTC().Format(time.RFC3339))
			f.Close()
			return func() {
				if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
					w.logger.Warn("releasing lock", zap.String("path", lockPath), zap.Error(err))
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("taking lock %s: %w", lockPath, err)
		}

		info, statErr := os.Stat(lockPath)
		if statErr == nil && timeNow().Sub(info.ModTime()) > staleLockAge {
			w.logger.Warn("taking over stale lock", zap.String("path", lockPath))
			if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("removing stale lock: %w", rmErr)
			}
			continue
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
}

// backup copies the current artifact to <path>.bak. A missing target
// means there is nothing to back up.
func (w *Writer) backup(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading prior artifact for backup: %w", err)
	}
	if err := atomicWrite(path+BackupSuffix, data); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	return nil
}

// atomicWrite writes content to a temp file beside path, fsyncs, and
// renames over the target.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(content); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// ChangeControlEntry is the metadata appended to documents written by
// an approved merge.
type ChangeControlEntry struct {
	Version int    `json:"version"`
	Date    string `json:"date"`
	Author  string `json:"author"`
}

// AppendChangeControl renders content with a change-control trailer.
// The author is a placeholder until a real identity is threaded
// through.
func AppendChangeControl(content []byte, entry ChangeControlEntry) []byte {
	trailer := fmt.Sprintf(
		"\n<!-- change-control: version=%d date=%s author=%s -->\n",
		entry.Version, entry.Date, entry.Author,
	)
	out := make([]byte, 0, len(content)+len(trailer))
	out = append(out, content...)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, trailer[1:]...)
}

package claims

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileState is what a snapshot remembers about one path.
type FileState struct {
	SHA256  string    `json:"sha256"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// Snapshot captures filesystem state before a claimed operation, so
// create claims can prove novelty and modify claims can prove change.
// Paths are stored relative to the snapshot root.
type Snapshot struct {
	Root    string               `json:"root"`
	TakenAt time.Time            `json:"taken_at"`
	Files   map[string]FileState `json:"files"`
}

// Has reports whether the snapshot saw the path.
func (s *Snapshot) Has(rel string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Files[filepath.ToSlash(rel)]
	return ok
}

// State returns the recorded state for a path.
func (s *Snapshot) State(rel string) (FileState, bool) {
	if s == nil {
		return FileState{}, false
	}
	st, ok := s.Files[filepath.ToSlash(rel)]
	return st, ok
}

// TakeSnapshot walks root and records every regular file. Hidden
// directories (and anything under them) are skipped — agent claims are
// about workspace files, not VCS internals.
func TakeSnapshot(root string) (*Snapshot, error) {
	snap := &Snapshot{
		Root:    root,
		TakenAt: timeNow().UTC(),
		Files:   make(map[string]FileState),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && len(name) > 0 && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		st, err := statFile(path)
		if err != nil {
			return err
		}
		snap.Files[filepath.ToSlash(rel)] = st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshotting %s: %w", root, err)
	}
	return snap, nil
}

// statFile hashes and stats one file.
func statFile(path string) (FileState, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileState{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileState{}, fmt.Errorf("stating %s: %w", path, err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return FileState{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	return FileState{
		SHA256:  hex.EncodeToString(h.Sum(nil)),
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

package claims

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// ActualState describes what the filesystem check found.
type ActualState string

const (
	StateExists  ActualState = "exists"
	StateAbsent  ActualState = "absent"
	StateDiffers ActualState = "differs"
	StateUnknown ActualState = "unknown"
)

// VerificationResult is the outcome of checking one claim. Verified is
// true only after a positive, explicit filesystem check — never by
// default or by absence of evidence.
type VerificationResult struct {
	Claim       Claim       `json:"claim"`
	Verified    bool        `json:"verified"`
	ActualState ActualState `json:"actual_state"`
}

// Verifier checks claims against the filesystem under a root
// directory. It is read-only and holds no mutable state beyond the
// optional short-TTL stat cache, which only ever dedupes lookups
// within a verification call — correctness never depends on it.
type Verifier struct {
	root   string
	cache  *statCache
	logger *zap.Logger
}

// NewVerifier creates a Verifier rooted at dir. A zero cacheTTL
// disables the stat cache.
func NewVerifier(dir string, cacheTTL time.Duration, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		root:   dir,
		cache:  newStatCache(cacheTTL),
		logger: logger,
	}
}

// Verify checks a single claim, optionally against a pre-operation
// snapshot.
//
//   - create: with a snapshot, verified only if the path exists now AND
//     was absent in the snapshot. Without one, existence alone is
//     accepted — it cannot prove novelty, a documented soundness
//     limitation.
//   - modify: verified if the path exists and its content hash or
//     modification time differs from the snapshot. Without a snapshot
//     the change cannot be disproven; existence is accepted with state
//     unknown.
//   - delete: verified if the path no longer exists.
func (v *Verifier) Verify(claim Claim, snap *Snapshot) VerificationResult {
	res := VerificationResult{Claim: claim}

	cur, exists := v.stat(claim.Path)

	switch claim.Kind {
	case OpCreate:
		if !exists {
			res.ActualState = StateAbsent
			return res
		}
		if snap == nil {
			// Existence proven, novelty unprovable.
			res.Verified = true
			res.ActualState = StateExists
			return res
		}
		if snap.Has(claim.Path) {
			// Pre-existing file: "created" is false.
			res.ActualState = StateExists
			return res
		}
		res.Verified = true
		res.ActualState = StateExists

	case OpModify:
		if !exists {
			res.ActualState = StateAbsent
			return res
		}
		prev, seen := snap.State(claim.Path)
		if snap == nil || !seen {
			res.Verified = true
			res.ActualState = StateUnknown
			return res
		}
		if prev.SHA256 != cur.SHA256 || !prev.ModTime.Equal(cur.ModTime) {
			res.Verified = true
			res.ActualState = StateDiffers
			return res
		}
		res.ActualState = StateExists

	case OpDelete:
		if exists {
			res.ActualState = StateExists
			return res
		}
		res.Verified = true
		res.ActualState = StateAbsent

	default:
		res.ActualState = StateUnknown
	}

	return res
}

// VerifyAll checks every claim, fanning out across goroutines — claims
// read disjoint paths, so concurrent verification is safe. Results
// come back in claim order.
func (v *Verifier) VerifyAll(ctx context.Context, claimList []Claim, snap *Snapshot) ([]VerificationResult, error) {
	results := make([]VerificationResult, len(claimList))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, c := range claimList {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = v.Verify(c, snap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.Verified {
			v.logger.Info("claim failed verification",
				zap.String("kind", string(r.Claim.Kind)),
				zap.String("path", r.Claim.Path),
				zap.String("actual_state", string(r.ActualState)))
		}
	}
	return results, nil
}

// stat resolves a claimed (possibly relative) path under the root and
// returns its hashed state, consulting the short-TTL cache first.
func (v *Verifier) stat(claimed string) (FileState, bool) {
	path := claimed
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}

	if st, ok, hit := v.cache.get(path); hit {
		return st, ok
	}

	if _, err := os.Stat(path); err != nil {
		v.cache.put(path, FileState{}, false)
		return FileState{}, false
	}
	st, err := statFile(path)
	if err != nil {
		v.logger.Warn("stat failed", zap.String("path", path), zap.Error(err))
		v.cache.put(path, FileState{}, false)
		return FileState{}, false
	}
	v.cache.put(path, st, true)
	return st, true
}

// Package gitidentity resolves a project directory into a ProjectIdentity:
// a normalised path plus optional git remote/branch enrichment, hashed into
// the stable project key the rest of this runtime keys sessions by.
package gitidentity

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
)

const cacheTTL = 5 * time.Minute

// Identity is a project's resolved identity: its normalised path, optional
// git remote and branch, and the hash derived from them.
type Identity struct {
	Path   string
	Remote string
	Branch string
	Hash   string
}

// Resolver resolves project paths to Identity, caching each path's result
// for cacheTTL so repeated lookups for the same active session don't re-open
// the repository on every call.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	identity  Identity
	expiresAt time.Time
}

// NewResolver creates a Resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]cacheEntry)}
}

// Resolve returns the Identity for projectPath, consulting the cache first.
func (r *Resolver) Resolve(projectPath string) Identity {
	norm := normalisePath(projectPath)

	r.mu.Lock()
	if entry, ok := r.cache[norm]; ok && time.Now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.identity
	}
	r.mu.Unlock()

	remote, branch := detectRemoteAndBranch(norm)
	id := Identity{
		Path:   norm,
		Remote: remote,
		Branch: branch,
		Hash:   hashIdentity(norm, remote, branch),
	}

	r.mu.Lock()
	r.cache[norm] = cacheEntry{identity: id, expiresAt: time.Now().Add(cacheTTL)}
	r.mu.Unlock()

	return id
}

// normalisePath strips trailing separators so "/repo" and "/repo/" hash
// identically.
func normalisePath(path string) string {
	clean := filepath.Clean(path)
	return strings.TrimRight(clean, string(filepath.Separator))
}

// hashIdentity returns the first 16 hex characters of SHA-256 over
// path|remote|branch.
func hashIdentity(path, remote, branch string) string {
	joined := strings.Join([]string{path, remote, branch}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}

// detectRemoteAndBranch opens the git repository at path (or its nearest
// parent) and returns its origin remote URL and current branch name.
// Either return value is empty if the path is not a git repository, has no
// "origin" remote, or HEAD is detached — these are not errors, since
// ProjectIdentity's git fields are optional.
func detectRemoteAndBranch(path string) (remote, branch string) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", ""
	}

	if rem, err := repo.Remote("origin"); err == nil {
		if urls := rem.Config().URLs; len(urls) > 0 {
			remote = urls[0]
		}
	}

	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	return remote, branch
}

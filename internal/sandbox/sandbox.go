// Package sandbox implements path canonicalization, project-root
// confinement, protected-path classification, and size-cap enforcement
// (spec §4.A). Every other component calls into the Sandbox before
// touching the filesystem.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// defaultProtectedLeading are the leading path segments that are
// protected by default (spec §3 Protected path predicate, §6
// Protected defaults).
var defaultProtectedLeading = []string{
	".git",
	".env",
	".nts",
	"go.sum",
	"package-lock.json",
	"Cargo.lock",
}

// Sandbox confines all path operations to a project root. Constructed
// once at startup (spec §9: the project root must not be mutable
// after the first operation has committed).
type Sandbox struct {
	root           string // canonical absolute project root
	sessionRoot    string // canonical absolute session state dir, e.g. <root>/.nts
	protectedExtra []string
	maxReadBytes   int64
}

// New resolves rootDir to its canonical form and returns a Sandbox
// rooted there. Fails if the root itself cannot be resolved (spec §6
// exit codes: "sandbox root cannot be resolved" is a startup failure).
func New(rootDir string, protectedExtra []string, maxReadBytes int64) (*Sandbox, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindSandboxEscape, err, "cannot resolve project root %q", rootDir)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, ntserr.Wrap(ntserr.KindSandboxEscape, err, "cannot resolve project root %q", rootDir)
		}
		resolved = abs
	}
	return &Sandbox{
		root:           filepath.Clean(resolved),
		sessionRoot:    filepath.Join(filepath.Clean(resolved), ".nts"),
		protectedExtra: protectedExtra,
		maxReadBytes:   maxReadBytes,
	}, nil
}

func (s *Sandbox) ProjectRoot() string { return s.root }
func (s *Sandbox) SessionRoot() string { return s.sessionRoot }
func (s *Sandbox) MaxReadableBytes() int64 { return s.maxReadBytes }

// Sanitize resolves a user-supplied path (absolute or relative to the
// project root) to its canonical absolute form, rejecting any escape
// from the project root. If allowProtected is false, a match against
// the protected predicate also fails.
//
// The canonical form need not exist on disk: create() calls Sanitize
// before the target file exists. Symlinks are resolved on the deepest
// existing ancestor so that a not-yet-created file still confines
// correctly.
func (s *Sandbox) Sanitize(userPath string, allowProtected bool) (string, error) {
	var candidate string
	if filepath.IsAbs(userPath) {
		candidate = filepath.Clean(userPath)
	} else {
		candidate = filepath.Clean(filepath.Join(s.root, userPath))
	}

	resolved, err := resolveExistingPrefix(candidate)
	if err != nil {
		return "", ntserr.Wrap(ntserr.KindSandboxEscape, err, "cannot resolve path %q", userPath)
	}

	rel, err := filepath.Rel(s.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ntserr.SandboxEscape(userPath)
	}

	if !allowProtected && s.IsProtected(resolved) {
		return "", ntserr.Protected(userPath)
	}

	return resolved, nil
}

// resolveExistingPrefix resolves symlinks along the longest existing
// prefix of path, then rejoins the remaining (not-yet-existing)
// components verbatim.
func resolveExistingPrefix(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", err
		}
		return filepath.Clean(resolved), nil
	}

	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := resolveExistingPrefix(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// IsProtected reports whether a canonical, in-root path matches the
// protected predicate: its first path segment (relative to the
// project root) matches a built-in or configured protected name.
func (s *Sandbox) IsProtected(canonicalPath string) bool {
	rel, err := filepath.Rel(s.root, canonicalPath)
	if err != nil {
		return true // fail closed
	}
	if rel == "." {
		return false
	}
	segments := strings.Split(rel, string(filepath.Separator))
	if len(segments) == 0 {
		return false
	}
	lead := segments[0]
	for _, p := range defaultProtectedLeading {
		if lead == p {
			return true
		}
	}
	for _, p := range s.protectedExtra {
		if lead == p {
			return true
		}
	}
	return false
}

// CheckFileSize enforces the max-readable-file cap for read paths
// (spec §4.A TooLarge). A path that cannot be stat'ed (for example a
// nonexistent file) yields IOFailure; a directory is compared by its
// own stat size.
func (s *Sandbox) CheckFileSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return ntserr.IOFailure(path, err)
	}
	if info.Size() > s.maxReadBytes {
		return ntserr.TooLarge(path, info.Size(), s.maxReadBytes)
	}
	return nil
}

// ShouldSkipDir reports whether a directory name should be excluded
// from directory walks (project structure, search, project-wide
// replace) independent of the protected-path predicate used for
// mutation gating.
func ShouldSkipDir(name string) bool {
	switch name {
	case "node_modules", ".git", "venv", ".venv", "__pycache__", ".nts", "dist", "build", "target":
		return true
	default:
		return false
	}
}

// IsInSkippedDir reports whether any path segment of a project-
// relative path matches ShouldSkipDir.
func IsInSkippedDir(relPath string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if ShouldSkipDir(seg) {
			return true
		}
	}
	return false
}

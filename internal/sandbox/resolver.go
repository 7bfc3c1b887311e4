// Package sandbox resolves operator-supplied path tokens against a
// session's current directory while containing every result inside the
// permitted root. This is the single security-critical invariant of
// the service: for all resolved paths P, P is a descendant of (or
// equal to) the root, or resolution fails with a path-escape error.
package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fileferry/internal/shared/errs"
)

// PathType classifies what a resolved path points at.
type PathType uint8

const (
	TypeMissing PathType = iota
	TypeFile
	TypeDir
)

// Resolved is the outcome of resolving one token. Ephemeral; produced
// per command.
type Resolved struct {
	Abs    string
	Exists bool
	Type   PathType
}

// Resolver converts (cwd, token) pairs into contained absolute paths.
// It carries no per-operator state.
type Resolver struct {
	root         string
	unrestricted bool
}

// New builds a resolver rooted at root. The root must exist and be a
// directory; it is canonicalized up front so later prefix checks
// compare like with like. Unrestricted mode widens the root to the
// filesystem root but keeps the containment check in place.
func New(root string, unrestricted bool) (*Resolver, error) {
	if unrestricted {
		root = string(os.PathSeparator)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errs.NotADirectory("init", root)
	}
	return &Resolver{root: canonical, unrestricted: unrestricted}, nil
}

// Root returns the canonical permitted root.
func (r *Resolver) Root() string { return r.root }

// Display renders an absolute path as the virtual path shown to the
// operator: relative to the root, with a leading separator.
func (r *Resolver) Display(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == "." {
		return string(os.PathSeparator)
	}
	return string(os.PathSeparator) + rel
}

// Parent returns the parent of dir, clamped at the root. Asking for
// the parent of the root yields the root itself.
func (r *Resolver) Parent(dir string) string {
	parent := filepath.Dir(dir)
	if !r.contains(parent) {
		return r.root
	}
	return parent
}

// Resolve converts a raw token into a contained absolute path.
//
// Empty or "." yields the cwd; ".." yields the parent clamped at the
// root; absolute-looking tokens are reinterpreted relative to the root
// rather than the real filesystem root. The joined path is
// canonicalized AFTER joining so a symlink inside the tree cannot
// carry the result outside of it.
func (r *Resolver) Resolve(op, cwd, token string) (Resolved, error) {
	joined := r.join(cwd, token)

	canonical, err := r.canonicalize(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// A contained-but-missing path is reported as such; an
			// escaping missing path must stay indistinguishable.
			if !r.contains(joined) {
				return Resolved{}, errs.PathEscape(op, token)
			}
			return Resolved{}, errs.NotFound(op, token)
		}
		return Resolved{}, errs.FromOS(op, token, err)
	}

	if !r.contains(canonical) {
		return Resolved{}, errs.PathEscape(op, token)
	}

	res := Resolved{Abs: canonical}
	info, err := os.Stat(canonical)
	switch {
	case err == nil:
		res.Exists = true
		if info.IsDir() {
			res.Type = TypeDir
		} else {
			res.Type = TypeFile
		}
	case errors.Is(err, fs.ErrNotExist):
		res.Type = TypeMissing
	default:
		return Resolved{}, errs.FromOS(op, token, err)
	}
	return res, nil
}

// ResolveExisting resolves a token and requires the target to exist.
func (r *Resolver) ResolveExisting(op, cwd, token string) (Resolved, error) {
	res, err := r.Resolve(op, cwd, token)
	if err != nil {
		return Resolved{}, err
	}
	if !res.Exists {
		return Resolved{}, errs.NotFound(op, token)
	}
	return res, nil
}

// ResolveDir resolves a token and requires an existing directory.
func (r *Resolver) ResolveDir(op, cwd, token string) (Resolved, error) {
	res, err := r.ResolveExisting(op, cwd, token)
	if err != nil {
		return Resolved{}, err
	}
	if res.Type != TypeDir {
		return Resolved{}, errs.NotADirectory(op, token)
	}
	return res, nil
}

// ResolveFile resolves a token and requires an existing regular file.
func (r *Resolver) ResolveFile(op, cwd, token string) (Resolved, error) {
	res, err := r.ResolveExisting(op, cwd, token)
	if err != nil {
		return Resolved{}, err
	}
	if res.Type != TypeFile {
		return Resolved{}, errs.NotAFile(op, token)
	}
	return res, nil
}

// ResolveCreate resolves a token whose ancestors may not exist yet,
// for operations that create intermediate directories. The deepest
// existing ancestor is canonicalized and the missing remainder is
// rejoined lexically before the containment check.
func (r *Resolver) ResolveCreate(op, cwd, token string) (Resolved, error) {
	joined := r.join(cwd, token)

	prefix := joined
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(prefix)
		if err == nil {
			canonical := filepath.Join(append([]string{resolved}, rest...)...)
			if !r.contains(canonical) {
				return Resolved{}, errs.PathEscape(op, token)
			}
			res := Resolved{Abs: canonical}
			if info, statErr := os.Stat(canonical); statErr == nil {
				res.Exists = true
				if info.IsDir() {
					res.Type = TypeDir
				} else {
					res.Type = TypeFile
				}
			}
			return res, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Resolved{}, errs.FromOS(op, token, err)
		}
		parent := filepath.Dir(prefix)
		if parent == prefix {
			return Resolved{}, errs.PathEscape(op, token)
		}
		rest = append([]string{filepath.Base(prefix)}, rest...)
		prefix = parent
	}
}

// join applies the token interpretation rules against a cwd. Empty or
// "." yields the cwd; ".." the clamped parent; absolute tokens are
// rebased onto the root.
func (r *Resolver) join(cwd, token string) string {
	token = strings.TrimSpace(token)

	var joined string
	switch {
	case token == "" || token == ".":
		joined = cwd
	case token == "..":
		joined = r.Parent(cwd)
	case filepath.IsAbs(token):
		trimmed := strings.TrimPrefix(filepath.Clean(token), string(os.PathSeparator))
		joined = filepath.Join(r.root, trimmed)
	default:
		joined = filepath.Join(cwd, token)
	}
	return filepath.Clean(joined)
}

// canonicalize resolves symlinks in path. A missing leaf is tolerated
// so destination tokens (mkdir, cp, mv targets) resolve through their
// parent; anything missing above the leaf propagates fs.ErrNotExist.
func (r *Resolver) canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, filepath.Base(path)), nil
}

// contains reports whether path sits at or below the root.
func (r *Resolver) contains(path string) bool {
	if path == r.root {
		return true
	}
	if r.root == string(os.PathSeparator) {
		return filepath.IsAbs(path)
	}
	return strings.HasPrefix(path, r.root+string(os.PathSeparator))
}

package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kamitools/kami/pkg/types"
)

// FsJail constrains tool filesystem access to a single root directory.
// The root is not canonicalized up front; symlink resolution happens
// lazily in ValidatePath so a jail can be created before its directory.
type FsJail struct {
	root string
}

// NewFsJail creates a jail rooted at the given directory.
func NewFsJail(root string) *FsJail {
	return &FsJail{root: root}
}

// Root returns the jail root as configured.
func (j *FsJail) Root() string { return j.root }

// ValidatePath checks a caller-supplied relative path and returns the
// resolved absolute location inside the jail.
//
// Three layers, all mandatory:
//  1. the input must be relative (no root component),
//  2. no component may be "..",
//  3. if the resolved path exists, it and the jail root must both
//     canonicalize, and the result must stay under the canonical root
//     (anti-symlink containment).
func (j *FsJail) ValidatePath(path string) (string, error) {
	if path == "" {
		return "", FsDenied(path)
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return "", FsDenied(path)
	}
	for _, component := range strings.Split(filepath.ToSlash(path), "/") {
		if component == ".." {
			return "", FsDenied(path)
		}
	}

	full := filepath.Join(j.root, path)

	if _, err := os.Lstat(full); err == nil {
		canonicalRoot, err := filepath.EvalSymlinks(j.root)
		if err != nil {
			return "", FsDenied(path).WithCause(err)
		}
		real, err := filepath.EvalSymlinks(full)
		if err != nil {
			return "", FsDenied(path).WithCause(err)
		}
		if !within(real, canonicalRoot) {
			return "", FsDenied(path)
		}
	}

	return full, nil
}

// CheckAccess verifies that the policy's fs level permits the requested
// capability kind at all, before path validation.
func CheckAccess(policy types.SecurityPolicy, write bool, path string) error {
	switch policy.FsAccess {
	case types.FsSandbox:
		return nil
	case types.FsReadOnly:
		if write {
			return FsDenied(path).WithHint("the sandbox is read-only")
		}
		return nil
	default:
		return FsDenied(path).WithHint(`fs_access is "none"`)
	}
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

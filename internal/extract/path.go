package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsafePath = errors.New("unsafe path")

// SafeJoin decides where a member may be written. It is the only
// authority on write locations: every destination path must come out of
// it. Rules, in order: reject absolute member paths, reject any ".."
// segment, then join onto root and reject results that escape the
// canonicalized root (which covers traversal through symlinked
// ancestors).
func SafeJoin(root, memberPath string) (string, error) {
	normalized := strings.ReplaceAll(memberPath, "\\", "/")
	if strings.HasPrefix(normalized, "/") || filepath.IsAbs(memberPath) || filepath.VolumeName(memberPath) != "" {
		return "", fmt.Errorf("%w: absolute member path %q", ErrUnsafePath, memberPath)
	}
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: parent traversal in %q", ErrUnsafePath, memberPath)
		}
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	target := filepath.Join(rootAbs, filepath.FromSlash(normalized))

	rootReal, err := resolveExisting(rootAbs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	targetReal, err := resolveExisting(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if targetReal != rootReal && !strings.HasPrefix(targetReal, rootReal+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes %q", ErrUnsafePath, memberPath, root)
	}
	return target, nil
}

// resolveExisting canonicalizes the deepest existing ancestor of path and
// rejoins the not-yet-created remainder, so symlinks that already exist
// on disk cannot redirect a write outside the root.
func resolveExisting(path string) (string, error) {
	var pending []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(pending) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, pending[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		pending = append(pending, filepath.Base(current))
		current = parent
	}
}

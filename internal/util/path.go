package util

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

var ErrPathEscapes = errors.New("path escapes root")

// NormalizeRelPath turns client input into a canonical slash-separated
// relative path. "" means the root itself. Backslashes, leading slashes,
// "./" and ".." chains all collapse; two inputs naming the same location
// normalize to the same string.
func NormalizeRelPath(p string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	clean = strings.TrimPrefix(path.Clean("/"+clean), "/")
	if clean == "." {
		return ""
	}
	return clean
}

// SafeJoin resolves rel against root and guarantees the result stays
// inside root. The containment check requires the joined path to equal
// root or to continue with a path separator, so a sibling like /a/bc can
// never pass for root /a/b.
func SafeJoin(root, rel string) (string, error) {
	if strings.ContainsRune(rel, '\x00') {
		return "", errors.New("invalid path")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	rootAbs = filepath.Clean(rootAbs)

	rel = NormalizeRelPath(rel)
	if rel == "" {
		return rootAbs, nil
	}
	joined, err := filepath.Abs(filepath.Join(rootAbs, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	joined = filepath.Clean(joined)
	if !withinRoot(rootAbs, joined) {
		return "", ErrPathEscapes
	}

	// A symlink under root may still point outside it. Resolve both sides
	// and re-check; for targets that do not exist the lookup fails and the
	// cleaned path stands on its own.
	rootReal := evalSymlinks(rootAbs)
	if !withinRoot(rootReal, evalSymlinks(joined)) {
		return "", ErrPathEscapes
	}
	return joined, nil
}

func withinRoot(root, target string) bool {
	if root == target {
		return true
	}
	return strings.HasPrefix(target, root+string(filepath.Separator))
}

func evalSymlinks(p string) string {
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return p
	}
	return real
}

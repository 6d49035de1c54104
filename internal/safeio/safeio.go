// Package safeio confines file operations to a fixed root directory and
// provides atomic writes for artifact and state files.
package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Root is a directory all operations are resolved against. Paths that escape
// the root (traversal, absolute paths) are rejected.
type Root struct {
	abs string
}

// NewRoot binds to the given directory, creating it if needed.
func NewRoot(dir string) (*Root, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &Root{abs: abs}, nil
}

// Dir returns the absolute root directory.
func (r *Root) Dir() string {
	if r == nil {
		return ""
	}
	return r.abs
}

// ReadFile reads a file relative to the root.
func (r *Root) ReadFile(rel string) ([]byte, error) {
	p, err := r.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// WriteFile writes atomically: content lands in a temp file in the target
// directory and is renamed into place, so readers never see a partial file.
// Returns the absolute path written.
func (r *Root) WriteFile(rel string, content []byte) (string, error) {
	p, err := r.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := WriteFileAtomic(p, content); err != nil {
		return "", err
	}
	return p, nil
}

// WriteFileAtomic writes content to path through a temp file in the same
// directory plus rename. Unlike Root.WriteFile it takes the path as-is, for
// state files whose location is configured rather than root-relative.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Exists reports whether a regular file exists under the root.
func (r *Root) Exists(rel string) bool {
	p, err := r.resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// resolve joins rel onto the root and verifies the result stays inside it.
func (r *Root) resolve(rel string) (string, error) {
	if r == nil {
		return "", errors.New("safeio: root not configured")
	}
	if rel == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "") {
		return "", errors.New("safeio: absolute paths not allowed")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("safeio: path traversal not allowed")
	}
	joined := filepath.Join(r.abs, clean)
	if !hasPrefix(joined, r.abs) {
		return "", fmt.Errorf("safeio: %s escapes root %s", rel, r.abs)
	}
	return joined, nil
}

func hasPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	return strings.HasPrefix(path, strings.TrimSuffix(root, sep)+sep)
}

package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Spool streams r into a new temporary file in dir (os.TempDir when empty)
// and returns its path and size. The caller removes the file.
func Spool(dir, pattern string, r io.Reader) (string, int64, error) {
	out, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}
	path := out.Name()

	written, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("spool %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("close spool file: %w", err)
	}
	return path, written, nil
}

// WriteFileAtomic writes data to a sibling temp file and renames it over
// path, creating the parent directory if needed. Readers never observe a
// partially written file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	out, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := out.Name()

	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := out.Chmod(mode); err != nil {
		_ = out.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

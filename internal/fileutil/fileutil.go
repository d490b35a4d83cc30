package fileutil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var filenameReplacer = strings.NewReplacer(
	":", " -",
	"/", "-",
	"\\", "-",
	"?", "",
	"*", "",
	"\"", "'",
	"<", "",
	">", "",
	"|", "-",
)

// NotePath returns where the markdown note for title lives inside dir
func NotePath(dir, title string) string {
	return filepath.Join(dir, SanitizeFilename(title)+".md")
}

// SanitizeFilename makes a book title usable as a file name on every platform
func SanitizeFilename(name string) string {
	return strings.Join(strings.Fields(filenameReplacer.Replace(name)), " ")
}

// FileExists checks if a regular file exists at the given path
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// WriteFile stores data at path through a temporary file in the same
// directory, so readers never see a partial file. An existing file is kept
// unless overwrite is set. Returns whether the file was written.
func WriteFile(path string, data []byte, overwrite bool) (bool, error) {
	if !overwrite && FileExists(path) {
		return false, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return false, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return true, nil
}

// WriteJSONFile writes data as indented JSON, keeping an existing file unless
// overwrite is set
func WriteJSONFile(path string, data any, overwrite bool) (bool, error) {
	if !overwrite && FileExists(path) {
		slog.Info("JSON file already exists, skipping", "path", path)
		return false, nil
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return WriteFile(path, append(encoded, '\n'), true)
}

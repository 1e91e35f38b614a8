package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MakeDir creates a directory with all parent directories
func MakeDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// DeleteFile removes a file
func DeleteFile(path string) error {
	return os.Remove(path)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsJPEG reports whether the file name carries a .jpg/.jpeg extension.
func IsJPEG(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// IDFromFilename parses the numeric stem of a design or test image,
// e.g. "designs/1234.jpg" -> 1234.
func IDFromFilename(path string) (int, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id, err := strconv.Atoi(stem)
	if err != nil {
		return 0, fmt.Errorf("file %s does not have a numeric name: %w", path, err)
	}
	return id, nil
}

// WalkImages calls fn for every JPEG under dir in lexical order, stopping
// after max files when max > 0.
func WalkImages(dir string, max int, fn func(path string) error) error {
	count := 0
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsJPEG(path) {
			return nil
		}
		if max > 0 && count >= max {
			return filepath.SkipAll
		}
		count++
		return fn(path)
	})
}

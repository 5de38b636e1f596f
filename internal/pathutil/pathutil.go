// Package pathutil provides shared path helpers.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths and paths containing null bytes.
func ValidateFilePath(filePath string) error {
	if strings.TrimSpace(filePath) == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(filePath, "\x00") {
		return fmt.Errorf("file path contains invalid characters")
	}
	return nil
}

// ResolveRelative resolves filePath against the directory of the file at
// base. Absolute paths and an empty base leave filePath unchanged, apart
// from cleaning.
func ResolveRelative(base, filePath string) (string, error) {
	if err := ValidateFilePath(filePath); err != nil {
		return "", err
	}
	if base == "" || filepath.IsAbs(filePath) {
		return filepath.Clean(filePath), nil
	}
	return filepath.Join(filepath.Dir(base), filePath), nil
}

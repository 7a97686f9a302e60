package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// GetPathInfo returns the absolute form of relPath and its directory.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	return fullPath, filepath.Dir(fullPath), nil
}

// ReadSource reads an ice9 source file and returns its text and absolute path.
func ReadSource(relPath string) (src string, fullPath string, err error) {
	fullPath, _, err = GetPathInfo(relPath)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", "", err
	}
	return string(data), fullPath, nil
}

// ListingPath returns the default output path for a source file: the same
// name with a .tm extension.
func ListingPath(srcPath string) string {
	ext := filepath.Ext(srcPath)
	if ext == "" {
		return srcPath + ".tm"
	}
	return strings.TrimSuffix(srcPath, ext) + ".tm"
}

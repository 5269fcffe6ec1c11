// Package utils resolves the source files handed to the stackc command.
package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// GetPathInfo returns the absolute, cleaned form of relPath and the
// directory holding it.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", errors.Wrapf(err, "could not resolve %s", relPath)
	}
	return fullPath, filepath.Dir(fullPath), nil
}

// ReadSource loads the program at path. It fails on a missing or unreadable
// file and on directories, and also returns the directory holding the file.
func ReadSource(path string) (src string, dir string, err error) {
	fullPath, dir, err := GetPathInfo(path)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return "", "", errors.Wrapf(err, "could not read source %s", path)
	}
	if info.IsDir() {
		return "", "", errors.Errorf("source %s is a directory", path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", "", errors.Wrapf(err, "could not read source %s", path)
	}
	return string(data), dir, nil
}

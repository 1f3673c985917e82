//go:build windows

package log

import (
	"os"
	"path/filepath"
)

// getDefaultDir resolves to %LOCALAPPDATA%\voxmcp\logs.
func getDefaultDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voxmcp", "logs"), nil
}

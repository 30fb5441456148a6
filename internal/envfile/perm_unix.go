//go:build !windows

package envfile

import "os"

// restrictPermissions makes the file readable by its owner only.
func restrictPermissions(path string) error {
	return os.Chmod(path, fileMode)
}

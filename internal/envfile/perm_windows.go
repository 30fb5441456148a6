//go:build windows

package envfile

// restrictPermissions is a no-op on Windows: POSIX mode bits do not map to
// ACLs, and files under the user profile are already private.
func restrictPermissions(string) error {
	return nil
}

//go:build !darwin && !linux

package replay

// filesystemType cannot be detected here; the store path is assumed local.
func filesystemType(string) (string, error) {
	return "", nil
}

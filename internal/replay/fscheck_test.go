package replay

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLocalFilesystem_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "replay.db")
	err := checkLocalFilesystemWithDetector(path, func(string) (string, error) {
		return "ext4", nil
	})
	assert.NoError(t, err)
}

func TestCheckLocalFilesystem_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "replay.db")
	err := checkLocalFilesystemWithDetector(path, func(string) (string, error) {
		return "nfs", nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `network filesystem "nfs"`)
	assert.Contains(t, err.Error(), "replay.path")
}

func TestCheckLocalFilesystem_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "nested", "dir", "replay.db")

	var inspected string
	err := checkLocalFilesystemWithDetector(path, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected)
}

func TestCheckLocalFilesystem_DetectorError(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystemWithDetector(t.TempDir(), func(string) (string, error) {
		return "", errors.New("statfs failed")
	})
	assert.ErrorContains(t, err, "statfs failed")
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fs   string
		want bool
	}{
		{fs: "nfs", want: true},
		{fs: "SMBFS", want: true},
		{fs: " cifs ", want: true},
		{fs: "apfs", want: false},
		{fs: "0x6969", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.fs, func(t *testing.T) {
			assert.Equal(t, tc.want, isNetworkFilesystem(tc.fs))
		})
	}
}

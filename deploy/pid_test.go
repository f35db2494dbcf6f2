//go:build !integration

package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePIDFile(t *testing.T) {
	tmpDir := t.TempDir()

	cases := []struct {
		tag  string
		dir  string
		mode os.FileMode

		expErr string
	}{
		{tag: "write pid file", dir: tmpDir, mode: 0644},
		{tag: "restricted mode", dir: tmpDir, mode: 0600},
		{tag: "dir does not exist", dir: filepath.Join(tmpDir, "foo"), mode: 0644, expErr: "no such file or directory"},
	}

	for _, c := range cases {
		t.Run(c.tag, func(t *testing.T) {
			pid, err := WritePIDFile(c.dir, c.mode)
			if c.expErr != "" {
				assert.ErrorContains(t, err, c.expErr)
				return
			}
			require.NoError(t, err)

			path := filepath.Join(c.dir, fmt.Sprintf("%d.pid", pid))
			stat, err := os.Stat(path)
			require.NoError(t, err)

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(pid), string(content))
			assert.Equal(t, c.mode, stat.Mode())
		})
	}
}

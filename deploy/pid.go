// Package deploy holds helpers for the process supervisors that run the auction server.
package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// WritePIDFile writes the current process id to <dir>/<pid>.pid so deploy tooling can find
// and signal every running instance.
func WritePIDFile(dir string, mode os.FileMode) (int, error) {
	pid := os.Getpid()
	filename := filepath.Join(dir, fmt.Sprintf("%d.pid", pid))
	if err := os.WriteFile(filename, []byte(strconv.Itoa(pid)), mode); err != nil {
		return pid, err
	}
	// WriteFile applies the umask, the mode is set explicitly.
	if err := os.Chmod(filename, mode); err != nil {
		return pid, err
	}
	return pid, nil
}

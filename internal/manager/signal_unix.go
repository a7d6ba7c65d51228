//go:build !windows

package manager

import (
	"os"
	"syscall"
)

// terminate asks a Unix process to exit gracefully.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

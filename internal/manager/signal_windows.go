//go:build windows

package manager

import "os"

// terminate kills the process outright; Windows has no SIGTERM equivalent
// suitable for console children.
func terminate(p *os.Process) error {
	return p.Kill()
}

//go:build windows

package infra

import "os"

// processAlive reports whether a process handle can be opened for pid.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}

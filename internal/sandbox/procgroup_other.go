//go:build !unix

package sandbox

import "os/exec"

// killProcessGroup falls back to killing the direct child on platforms
// without process groups.
func killProcessGroup(cmd *exec.Cmd) {}

//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// backgroundProcess puts the auto-started server in its own session so closing
// the terminal does not send it SIGHUP
func backgroundProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

//go:build !windows

package nativebind

import (
	"errors"
	"os"
	"os/exec"
)

// setExtraFiles attaches files to cmd. On Unix they appear in the child as
// fd 3, 4, ... in order.
func setExtraFiles(cmd *exec.Cmd, files []*os.File) error {
	cmd.ExtraFiles = files
	return nil
}

// waitForExit waits for cmd and reports a killed child distinctly.
func waitForExit(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
			return errors.New("worker process was killed: " + exitErr.String())
		}
		return err
	}
	return nil
}

//go:build windows

package nativebind

import (
	"fmt"
	"os"
	"os/exec"
)

func setExtraFiles(cmd *exec.Cmd, files []*os.File) error {
	return fmt.Errorf("nativebind: process workers: %w", ErrUnsupportedPlatform)
}

func waitForExit(cmd *exec.Cmd) error {
	return cmd.Wait()
}

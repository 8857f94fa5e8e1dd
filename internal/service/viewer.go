// internal/service/viewer.go
package service

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// FilenamePlaceholder is replaced by the screenshot path in the viewer command
const FilenamePlaceholder = "{filename}"

// ViewerCommand substitutes the screenshot path into the configured command
func ViewerCommand(template, filename string) string {
	return strings.ReplaceAll(template, FilenamePlaceholder, filename)
}

// LaunchViewer starts the viewer through the platform shell and does not
// wait for it. Its output is discarded unless debug is set.
func LaunchViewer(template, filename string, debug bool, logger *zap.Logger) (string, error) {
	command := ViewerCommand(strings.TrimSpace(template), filename)
	if command == "" {
		return "", nil
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}

	// nil Stdout/Stderr go to the null device
	if debug {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return command, fmt.Errorf("failed to start screenshot viewer: %w", err)
	}

	logger.Debug("Screenshot viewer started",
		zap.String("command", command),
		zap.Int("pid", cmd.Process.Pid),
	)

	if err := cmd.Process.Release(); err != nil {
		logger.Debug("Failed to release viewer process", zap.Error(err))
	}
	return command, nil
}

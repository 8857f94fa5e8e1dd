// internal/cli/exitcode.go
package cli

import "dp800ctl/internal/model"

// Process exit codes
const (
	ExitOK            = 0
	ExitUsage         = 1 // unknown command or flag, wrong argument count, anything unclassified
	ExitValidation    = 2
	ExitConnection    = 3
	ExitProtocol      = 4
	ExitConfiguration = 5
	ExitIO            = 6
)

var kindExitCodes = map[model.ErrorKind]int{
	model.KindValidation:    ExitValidation,
	model.KindConnection:    ExitConnection,
	model.KindProtocol:      ExitProtocol,
	model.KindConfiguration: ExitConfiguration,
	model.KindIO:            ExitIO,
}

// ExitCode maps an error returned by a command to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if code, ok := kindExitCodes[model.KindOf(err)]; ok {
		return code
	}
	return ExitUsage
}

// cmd/dp800/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"dp800ctl/internal/cli"
)

func main() {
	// Cancel in-flight reads on Ctrl-C; deferred closes still run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}

	code := cli.Run(ctx, os.Args[1:], cli.Options{
		Stdout:  color.Output,
		Stderr:  color.Error,
		HomeDir: home,
		WorkDir: wd,
	})
	stop()
	os.Exit(code)
}

// ./main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/vzpilot/cmd"
)

// osExit is swapped out in tests.
var osExit = os.Exit

// main is the entry point for the vzpilot CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

// exitCode maps a command error to a process exit status. Errors are already
// logged by cmd.Execute. An interrupted run exits like a job killed by SIGINT.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted.")
		return 130
	default:
		return 1
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourceplane/liteflow/internal/model"
)

// Process exit codes
const (
	exitFailed     = 1
	exitDefinition = 2
)

// ExitError carries a process exit code; a nil Err exits without a message
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps an error returned by a command to the process exit code
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if model.IsDefinitionError(err) {
		return exitDefinition
	}
	return exitFailed
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

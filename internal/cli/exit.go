package cli

import (
	"errors"

	"github.com/vk/flowgrid/internal/engine"
)

// Process exit codes.
const (
	ExitOk         = 0
	ExitOtherError = 1
	ExitUsage      = 2
	ExitValidation = 3
	ExitNoInput    = 4
	ExitAuth       = 5
	ExitCancelled  = 6
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// ExitCode returns the process exit code for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return ExitOk
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitOtherError
}

// signalExitCode maps a terminal run signal to its exit code.
func signalExitCode(sig engine.Signal) int {
	switch sig {
	case engine.SignalOk:
		return ExitOk
	case engine.SignalValidationError:
		return ExitValidation
	case engine.SignalNoInputNode:
		return ExitNoInput
	case engine.SignalAuthRequired:
		return ExitAuth
	case engine.SignalCancelled:
		return ExitCancelled
	default:
		return ExitOtherError
	}
}

// runExitError wraps the error returned by a run. Nil stays nil.
func runExitError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: signalExitCode(engine.SignalOf(err)), Message: err.Error()}
}

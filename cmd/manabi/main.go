package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Run completed, every dispatched task succeeded
	ExitRunFailed = 1 // Run completed but some tasks failed or were interrupted
	ExitError     = 2 // Configuration or runtime error
)

// RunFailureError indicates that the batch ran to completion, but one or
// more tasks failed and are marked in the checkpoint.
type RunFailureError struct {
	Message string
}

func (e *RunFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Check error type to determine exit code
		var runFailureErr *RunFailureError
		if errors.As(err, &runFailureErr) {
			os.Exit(ExitRunFailed)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}

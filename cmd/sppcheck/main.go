package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/srg/sppcheck/internal/check"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Process exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(), os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs cmd and maps its outcome to a process exit code.
func execute(ctx context.Context, cmd *cobra.Command, stderr io.Writer) int {
	return exitCode(cmd.ExecuteContext(ctx), stderr)
}

func exitCode(err error, stderr io.Writer) int {
	var stepErr *check.StepError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		// Ctrl+C; the command already told the user
		return exitInterrupted
	case errors.As(err, &stepErr):
		// The check printed its own failure report
		return exitFailure
	default:
		fmt.Fprintf(stderr, "ERROR: %s\n", FormatUserError(err))
		return exitFailure
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/miradorstack/ids-eval/internal/utils"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitFailure     = 1
	exitConfigError = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ids-eval",
		Short:         "Evaluate statistical, isolation-forest and LLM-agent labeling of NetFlow windows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand())
	return root
}

func exitCode(err error) int {
	if utils.IsKind(err, utils.KindConfig) || utils.IsKind(err, utils.KindData) {
		return exitConfigError
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return exitConfigError
	}
	return exitFailure
}

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

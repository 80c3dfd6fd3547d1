// Command gptldemo exercises the gptl engine from the command line: run
// drives a synthetic nested-timer workload across goroutines and report
// prints the resulting hierarchical report. Unlike tools/gptlbench, which
// uses the standard flag package, it is a cobra CLI with subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

func newLogger() logr.Logger {
	if !verbose {
		return logr.Discard()
	}
	zapLog, err := zap.NewDevelopment()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zapLog)
}

func main() {
	root := &cobra.Command{
		Use:   "gptldemo",
		Short: "Exercise the gptl timing engine",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newReportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

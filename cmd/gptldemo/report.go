package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timewell/gptl/pkg/gptl"
)

var printMethodNames = map[string]gptl.PrintMethod{
	"first_parent":  gptl.FirstParent,
	"last_parent":   gptl.LastParent,
	"most_frequent": gptl.MostFrequent,
	"full_tree":     gptl.FullTree,
}

func newReportCmd() *cobra.Command {
	var (
		workers    int
		iterations int
		method     string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the demo workload under a chosen call-tree policy and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, ok := printMethodNames[method]
			if !ok {
				return fmt.Errorf("unknown print method %q (want one of first_parent, last_parent, most_frequent, full_tree)", method)
			}

			t := gptl.New(
				gptl.WithLogger(newLogger()),
				gptl.WithMaxThreads(workers+1),
				gptl.WithPrintMethod(pm),
				gptl.WithMultiParentDetail(true),
				gptl.WithThreadSort(true),
			)
			if err := t.Initialize(); err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer t.Finalize()

			for w := 0; w < workers; w++ {
				runWorker(t, w, iterations)
			}

			return t.WriteReport(os.Stdout)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 2, "number of sequential simulated threads")
	cmd.Flags().IntVar(&iterations, "iterations", 20, "iterations per thread")
	cmd.Flags().StringVar(&method, "print-method", "first_parent",
		"call-tree parent-selection policy: first_parent, last_parent, most_frequent, full_tree")
	return cmd
}

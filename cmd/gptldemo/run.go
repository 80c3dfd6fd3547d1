package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/timewell/gptl/pkg/gptl"
)

func newRunCmd() *cobra.Command {
	var (
		workers    int
		iterations int
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic nested-timer workload and write a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := gptl.New(
				gptl.WithLogger(newLogger()),
				gptl.WithThreadBackend(gptl.MutexBackend),
				gptl.WithMaxThreads(workers+1),
				gptl.WithOverhead(true),
				gptl.WithPercent(true),
			)
			if err := t.Initialize(); err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer t.Finalize()

			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(worker int) {
					defer wg.Done()
					runWorker(t, worker, iterations)
				}(w)
			}
			wg.Wait()

			if reportPath == "" {
				return t.WriteReport(os.Stdout)
			}
			return t.WriteReportFile(reportPath)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent goroutine workers")
	cmd.Flags().IntVar(&iterations, "iterations", 100, "iterations per worker")
	cmd.Flags().StringVar(&reportPath, "report", "", "write report to this path instead of stdout")
	return cmd
}

// runWorker drives a small nested call pattern -- handler calling parse and
// render, render recursing once -- so the resulting report exercises the
// call tree and recursion accounting. Every region in it has a single
// parent, so the multiple-parent marker and detail stay empty.
func runWorker(t *gptl.Timers, worker, iterations int) {
	for i := 0; i < iterations; i++ {
		_ = t.Start(worker, "handle_request")
		_ = t.Start(worker, "parse")
		time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
		_ = t.Stop(worker, "parse")

		renderDepth(t, worker, 2)

		_ = t.Stop(worker, "handle_request")
	}
}

func renderDepth(t *gptl.Timers, worker, depth int) {
	if depth == 0 {
		return
	}
	_ = t.Start(worker, "render")
	time.Sleep(time.Duration(rand.Intn(100)) * time.Microsecond)
	renderDepth(t, worker, depth-1)
	_ = t.Stop(worker, "render")
}

// Command gptlbench benchmarks the thread registry's first-time slot
// allocation path under concurrent load: many goroutines race to register
// a never-before-seen ThreadID, bounded by a semaphore.Weighted so the
// benchmark itself doesn't spawn unbounded goroutines ahead of the
// registry mutex they're contending on.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/timewell/gptl/pkg/gptl"
)

var (
	threads     = flag.Int("threads", 256, "Number of distinct ThreadIDs to register")
	concurrency = flag.Int64("concurrency", int64(runtime.GOMAXPROCS(0)), "Max goroutines in flight at once")
	iterations  = flag.Int("iterations", 5, "Number of full benchmark passes")
)

func main() {
	flag.Parse()

	fmt.Printf("Thread registry allocation benchmark\n")
	fmt.Printf("threads=%d concurrency=%d iterations=%d\n\n", *threads, *concurrency, *iterations)

	var durations []time.Duration
	for i := 0; i < *iterations; i++ {
		d, err := runPass(*threads, *concurrency)
		if err != nil {
			fmt.Fprintln(os.Stderr, "pass", i, "failed:", err)
			os.Exit(1)
		}
		durations = append(durations, d)
		fmt.Printf("pass %d: %v\n", i, d)
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	fmt.Printf("\nmedian: %v\n", durations[len(durations)/2])
}

func runPass(n int, concurrency int64) (time.Duration, error) {
	t := gptl.New(gptl.WithMaxThreads(n + 1))
	if err := t.Initialize(); err != nil {
		return 0, err
	}
	defer t.Finalize()

	sem := semaphore.NewWeighted(concurrency)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			return 0, err
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer sem.Release(1)
			_ = t.Start(id, "work")
			_ = t.Stop(id, "work")
		}(i)
	}
	wg.Wait()
	return time.Since(start), nil
}

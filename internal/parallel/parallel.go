// Package parallel provides bounded fan-out helpers for independent work items.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4,
	}
}

// chunks splits [0, n) into contiguous ranges, one per goroutine. It
// returns nil when the work should run sequentially.
func chunks(n int, cfg Config) [][2]int {
	workers := cfg.NumWorkers
	if !cfg.Enabled || workers < 2 || n < 2 || n < cfg.MinChunkSize {
		return nil
	}
	chunkSize := max((n+workers-1)/workers, cfg.MinChunkSize, 1)
	if chunkSize >= n {
		return nil
	}
	var out [][2]int
	for start := 0; start < n; start += chunkSize {
		out = append(out, [2]int{start, min(start+chunkSize, n)})
	}
	return out
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ranges := chunks(n, cfg)
	if ranges == nil {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	for _, r := range ranges {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(r[0], r[1])
	}
	wg.Wait()
}

// ForErr is For for fallible work. Each goroutine stops at its first error
// and the error with the lowest index is returned, so the result matches a
// sequential run that stops at the first failure.
func ForErr(n int, f func(i int) error, cfg Config) error {
	ranges := chunks(n, cfg)
	if ranges == nil {
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, len(ranges))
	var wg sync.WaitGroup
	for c, r := range ranges {
		wg.Add(1)
		go func(c, s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				if err := f(i); err != nil {
					errs[c] = err
					return
				}
			}
		}(c, r[0], r[1])
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

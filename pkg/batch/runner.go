package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds runner configuration
type Config struct {
	// MaxConcurrency is the maximum number of tasks running at once.
	// Every task shares one fetch pool, so this mostly bounds queued work.
	MaxConcurrency int
	// Timeout per task
	Timeout time.Duration
	// ProgressEvery logs progress after this many completed tasks
	ProgressEvery int
	// StopOnError cancels the remaining tasks after the first failure
	StopOnError bool
}

// DefaultConfig returns a configuration sized for the market-data API quota
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		Timeout:        5 * time.Minute,
		ProgressEvery:  50,
	}
}

// Task is one unit of work
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of a single task
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Summary aggregates a run
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Errors    []error
}

// Err joins every task failure, or returns nil
func (s Summary) Err() error {
	return errors.Join(s.Errors...)
}

// Runner executes tasks on a bounded worker pool
type Runner struct {
	config Config
}

// NewRunner creates a new runner
func NewRunner(config Config) *Runner {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = defaults.ProgressEvery
	}

	return &Runner{config: config}
}

// Run executes all tasks and waits for them. Individual failures are collected
// in the summary; the returned error is non-nil only when the run was cut short
// by ctx or by StopOnError.
func (r *Runner) Run(ctx context.Context, name string, tasks []Task) (Summary, error) {
	start := time.Now()
	summary := Summary{Total: len(tasks)}

	if len(tasks) == 0 {
		return summary, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info().
		Str("batch", name).
		Int("tasks", len(tasks)).
		Int("workers", r.config.MaxConcurrency).
		Msg("Starting batch")

	queue := make(chan Task)
	results := make(chan Result, r.config.MaxConcurrency)

	go func() {
		defer close(queue)
		for _, task := range tasks {
			select {
			case queue <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < r.config.MaxConcurrency && i < len(tasks); i++ {
		wg.Add(1)
		go r.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var stopErr error
	for result := range results {
		if result.Err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Errorf("%s: %w", result.Name, result.Err))

			log.Warn().
				Err(result.Err).
				Str("batch", name).
				Str("task", result.Name).
				Msg("Task failed")

			if r.config.StopOnError && stopErr == nil {
				stopErr = fmt.Errorf("task %s failed: %w", result.Name, result.Err)
				cancel()
			}
			continue
		}

		summary.Succeeded++
		if done := summary.Succeeded + summary.Failed; done%r.config.ProgressEvery == 0 {
			log.Info().
				Str("batch", name).
				Int("done", done).
				Int("total", summary.Total).
				Float64("progress_pct", float64(done)/float64(summary.Total)*100).
				Msg("Batch progress")
		}
	}

	summary.Skipped = summary.Total - summary.Succeeded - summary.Failed
	summary.Duration = time.Since(start)

	logEvent := log.Info()
	if summary.Failed > 0 {
		logEvent = log.Warn()
	}
	logEvent.
		Str("batch", name).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Batch complete")

	if stopErr != nil {
		return summary, stopErr
	}
	if summary.Skipped > 0 {
		if err := context.Cause(ctx); err != nil {
			return summary, fmt.Errorf("batch %s interrupted (%d/%d tasks done): %w",
				name, summary.Succeeded+summary.Failed, summary.Total, err)
		}
	}
	return summary, nil
}

// worker processes tasks from the queue
func (r *Runner) worker(ctx context.Context, queue <-chan Task, results chan<- Result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for task := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("tasks_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		taskCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		start := time.Now()
		err := task.Run(taskCtx)
		cancel()

		results <- Result{Name: task.Name, Err: err, Duration: time.Since(start)}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("tasks_processed", processed).
			Msg("Worker completed")
	}
}

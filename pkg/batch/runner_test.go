package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(Config{})

	if r.config.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", r.config.MaxConcurrency)
	}
	if r.config.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", r.config.Timeout)
	}
	if r.config.ProgressEvery != 50 {
		t.Errorf("ProgressEvery = %d, want 50", r.config.ProgressEvery)
	}
}

func TestRun_AllTasksSucceed(t *testing.T) {
	var ran atomic.Int32
	tasks := make([]Task, 120)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("task-%d", i),
			Run: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		}
	}

	summary, err := NewRunner(Config{MaxConcurrency: 4}).Run(context.Background(), "test", tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ran.Load() != 120 {
		t.Errorf("ran = %d, want 120", ran.Load())
	}
	if summary.Total != 120 || summary.Succeeded != 120 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Err() != nil {
		t.Errorf("summary.Err() = %v, want nil", summary.Err())
	}
}

func TestRun_Empty(t *testing.T) {
	summary, err := NewRunner(DefaultConfig()).Run(context.Background(), "empty", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Total != 0 {
		t.Errorf("Total = %d, want 0", summary.Total)
	}
}

func TestRun_ConcurrencyBounded(t *testing.T) {
	const limit = 3
	var active, peak atomic.Int32

	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("task-%d", i),
			Run: func(ctx context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			},
		}
	}

	if _, err := NewRunner(Config{MaxConcurrency: limit}).Run(context.Background(), "bounded", tasks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak.Load() > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), limit)
	}
}

func TestRun_FailuresCollected(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task{
		{Name: "ok-1", Run: func(context.Context) error { return nil }},
		{Name: "bad", Run: func(context.Context) error { return boom }},
		{Name: "ok-2", Run: func(context.Context) error { return nil }},
	}

	summary, err := NewRunner(Config{MaxConcurrency: 2}).Run(context.Background(), "mixed", tasks)
	if err != nil {
		t.Fatalf("Run() error = %v, failures should only be reported in the summary", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if !errors.Is(summary.Err(), boom) {
		t.Errorf("summary.Err() = %v, want boom", summary.Err())
	}
}

func TestRun_StopOnError(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	tasks := []Task{{Name: "bad", Run: func(context.Context) error { return boom }}}
	for i := 0; i < 50; i++ {
		tasks = append(tasks, Task{
			Name: fmt.Sprintf("task-%d", i),
			Run: func(ctx context.Context) error {
				ran.Add(1)
				time.Sleep(time.Millisecond)
				return nil
			},
		})
	}

	summary, err := NewRunner(Config{MaxConcurrency: 1, StopOnError: true}).Run(context.Background(), "stop", tasks)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if summary.Skipped == 0 {
		t.Errorf("expected skipped tasks after stop, summary = %+v", summary)
	}
	if ran.Load() >= 50 {
		t.Errorf("ran = %d, remaining tasks should have been cancelled", ran.Load())
	}
}

func TestRun_TaskTimeout(t *testing.T) {
	tasks := []Task{{
		Name: "slow",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}

	summary, err := NewRunner(Config{MaxConcurrency: 1, Timeout: 10 * time.Millisecond}).Run(context.Background(), "timeout", tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !errors.Is(summary.Err(), context.DeadlineExceeded) {
		t.Errorf("summary.Err() = %v, want deadline exceeded", summary.Err())
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("task-%d", i),
			Run: func(ctx context.Context) error {
				cancel()
				<-ctx.Done()
				return ctx.Err()
			},
		}
	}

	summary, err := NewRunner(Config{MaxConcurrency: 1}).Run(ctx, "cancelled", tasks)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if summary.Skipped == 0 {
		t.Errorf("expected skipped tasks, summary = %+v", summary)
	}
}

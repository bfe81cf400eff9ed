// Package batch runs many independent tasks on a bounded worker pool.
//
// The cache builder issues one bar download per symbol and trading day, which
// easily adds up to tens of thousands of requests. Runner feeds them to a fixed
// number of workers so that the fetch pool queue and the API quota are not
// flooded, and reports progress as it goes.
//
// Example usage:
//
//	runner := batch.NewRunner(batch.DefaultConfig())
//	summary, err := runner.Run(ctx, "build-cache", tasks)
//
// The runner:
//   - Starts MaxConcurrency workers
//   - Applies a per-task timeout
//   - Collects failures without stopping, unless StopOnError is set
//   - Logs progress every ProgressEvery tasks
package batch

// Package async runs a batch of named tasks over a bounded set of workers.
package async

import (
	"context"
	"fmt"
	"sync"
)

// Task is one unit of work. Names must be unique within a batch.
type Task struct {
	Name    string
	Execute func(ctx context.Context) (any, error)
}

type Result struct {
	Name string
	Data any
	Err  error
}

// TaskError identifies the task that failed a batch.
type TaskError struct {
	Name string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Name: task.Name, Err: err}
			continue
		}
		data, err := task.Execute(ctx)
		results <- Result{
			Name: task.Name,
			Data: data,
			Err:  err,
		}
	}
}

// Execute runs every task and collects the results by name. The first
// failure cancels the context handed to the remaining tasks and is returned
// as a *TaskError; the results map still holds whatever completed.
func (p *Pool) Execute(ctx context.Context, tasks []Task) (map[string]Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < min(p.workerCount, max(len(tasks), 1)); i++ {
		wg.Add(1)
		go p.worker(ctx, taskCh, resultCh, &wg)
	}

	// Send tasks
	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]Result, len(tasks))
	var firstErr error
	for result := range resultCh {
		results[result.Name] = result
		if result.Err != nil && firstErr == nil {
			firstErr = &TaskError{Name: result.Name, Err: result.Err}
			cancel()
		}
	}

	if firstErr == nil && len(results) < len(tasks) {
		// Only an outside cancellation stops tasks from being dispatched.
		return results, ctx.Err()
	}
	return results, firstErr
}

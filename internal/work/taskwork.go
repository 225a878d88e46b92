package work

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is a single calculation inside a TaskWork. Run receives the task's
// private directory and returns a partial result mapping merged into the
// work's results.
type Task interface {
	Name() string
	Run(ctx context.Context, dir string) (Results, error)
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context, dir string) (Results, error)
}

func (t TaskFunc) Name() string { return t.TaskName }

func (t TaskFunc) Run(ctx context.Context, dir string) (Results, error) {
	return t.Fn(ctx, dir)
}

// Condenser folds the per-task results of a finished TaskWork into the
// work's final result mapping. A nil condenser returns the raw union.
type Condenser func(perTask []Results) (Results, error)

// Compile-time interface check.
var _ Work = (*TaskWork)(nil)

// TaskWork runs a fixed list of tasks under one work directory,
// chunkSize tasks at a time. Each task gets a task_<i>_<name>
// subdirectory. The first task failure cancels the remaining tasks in
// flight via errgroup context propagation.
type TaskWork struct {
	workdir  string
	tasks    []Task
	condense Condenser

	mu       sync.Mutex
	perTask  []Results
	done     chan struct{}
	started  bool
	finished bool
	err      error
}

// NewTaskWork creates a TaskWork rooted at workdir. condense may be nil.
func NewTaskWork(workdir string, tasks []Task, condense Condenser) *TaskWork {
	return &TaskWork{
		workdir:  workdir,
		tasks:    tasks,
		condense: condense,
		perTask:  make([]Results, len(tasks)),
		done:     make(chan struct{}),
	}
}

// Start launches the tasks in background goroutines, at most chunkSize
// at a time. It returns immediately after dispatch begins; use Wait to
// block for completion.
func (w *TaskWork) Start(ctx context.Context, chunkSize int) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("work: %s already started", w.workdir)
	}
	w.started = true
	w.mu.Unlock()

	if chunkSize < 1 {
		chunkSize = 1
	}
	if err := os.MkdirAll(w.workdir, 0o755); err != nil {
		return fmt.Errorf("work: creating workdir %s: %w", w.workdir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkSize)

	go func() {
		for i, task := range w.tasks {
			i, task := i, task
			g.Go(func() error {
				dir := filepath.Join(w.workdir, fmt.Sprintf("task_%d_%s", i, task.Name()))
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("work: creating task dir %s: %w", dir, err)
				}
				res, err := task.Run(gctx, dir)
				if err != nil {
					return fmt.Errorf("work: task %s: %w", task.Name(), err)
				}
				w.mu.Lock()
				w.perTask[i] = res
				w.mu.Unlock()
				return nil
			})
		}

		err := g.Wait()
		w.mu.Lock()
		w.finished = true
		w.err = err
		w.mu.Unlock()
		close(w.done)
	}()

	return nil
}

// Wait blocks until every task has finished.
func (w *TaskWork) Wait() error {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Results condenses and returns the per-task results. It is an error to
// call Results before the work has finished or after it has failed.
func (w *TaskWork) Results() (Results, error) {
	w.mu.Lock()
	finished, err := w.finished, w.err
	perTask := make([]Results, len(w.perTask))
	copy(perTask, w.perTask)
	w.mu.Unlock()

	if !finished {
		return nil, fmt.Errorf("work: %s has not finished", w.workdir)
	}
	if err != nil {
		return nil, fmt.Errorf("work: %s failed: %w", w.workdir, err)
	}

	if w.condense != nil {
		return w.condense(perTask)
	}

	merged := Results{}
	for _, res := range perTask {
		for k, v := range res {
			merged[k] = v
		}
	}
	return merged, nil
}

// Move relocates the whole work tree into a sibling subdirectory of its
// parent, e.g. Move("ITERATIVE") turns parent/w into parent/ITERATIVE.
func (w *TaskWork) Move(subdir string) error {
	dst := filepath.Join(filepath.Dir(w.workdir), subdir)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("work: preparing %s: %w", dst, err)
	}
	if err := os.Rename(w.workdir, dst); err != nil {
		return fmt.Errorf("work: moving %s to %s: %w", w.workdir, dst, err)
	}
	w.mu.Lock()
	w.workdir = dst
	w.mu.Unlock()
	return nil
}

// Workdir returns the work's current root directory.
func (w *TaskWork) Workdir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.workdir
}

// PathInWorkdir joins name onto the work's current root directory.
func (w *TaskWork) PathInWorkdir(name string) string {
	return filepath.Join(w.Workdir(), name)
}

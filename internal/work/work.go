// Package work defines the contract between the dojo trainers and the
// external calculation workflows, plus a local task-batch runner used by
// the in-tree workflow factories.
package work

import "context"

// Results is the merged output mapping of a completed work unit.
type Results map[string]any

// Work is a queued or running batch of external calculations. Start is
// asynchronous; Wait blocks until every task has finished. Results may
// only be consulted after Wait has returned.
type Work interface {
	// Start launches the work's tasks, at most chunkSize at a time.
	// chunkSize <= 1 runs tasks strictly sequentially.
	Start(ctx context.Context, chunkSize int) error

	// Wait blocks until all started tasks finish and returns the first
	// task error, if any.
	Wait() error

	// Results returns the merged result mapping of the completed work.
	Results() (Results, error)

	// Move relocates the work tree into a subdirectory of its parent.
	Move(subdir string) error

	// Workdir is the work's root directory.
	Workdir() string

	// PathInWorkdir joins name onto the work's root directory.
	PathInWorkdir(name string) string
}

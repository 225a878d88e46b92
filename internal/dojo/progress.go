package dojo

import (
	"fmt"
	"sync"
)

// TrainingStatus is the state of one level within a training run.
type TrainingStatus string

const (
	StatusSkipped  TrainingStatus = "skipped"
	StatusWorking  TrainingStatus = "working"
	StatusComplete TrainingStatus = "complete"
	StatusFailed   TrainingStatus = "failed"
)

// TrainingEvent is emitted to the caller while a pseudopotential is
// challenged through the levels.
type TrainingEvent struct {
	Pseudo  string
	Level   int
	Key     string
	Status  TrainingStatus
	Message string
}

// ProgressReporter emits training events through a buffered channel.
type ProgressReporter struct {
	ch        chan TrainingEvent
	closeOnce sync.Once
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		ch: make(chan TrainingEvent, 64),
	}
}

// Emit sends a training event in a non-blocking fashion.
// If the channel is full, the event is silently dropped.
func (pr *ProgressReporter) Emit(event TrainingEvent) {
	select {
	case pr.ch <- event:
	default:
		// Drop the event if the channel is full.
	}
}

// Subscribe returns a read-only channel for consuming training events.
func (pr *ProgressReporter) Subscribe() <-chan TrainingEvent {
	return pr.ch
}

// Close closes the training event channel. Safe to call more than once.
func (pr *ProgressReporter) Close() {
	pr.closeOnce.Do(func() { close(pr.ch) })
}

// FormatProgress formats a TrainingEvent as a human-readable status line.
func FormatProgress(event TrainingEvent) string {
	switch event.Status {
	case StatusSkipped:
		return fmt.Sprintf("  ○ level %d (%s) skipped: not eligible", event.Level, event.Key)
	case StatusWorking:
		return fmt.Sprintf("  ● level %d (%s)...", event.Level, event.Key)
	case StatusComplete:
		return fmt.Sprintf("  ✓ level %d (%s) complete", event.Level, event.Key)
	case StatusFailed:
		return fmt.Sprintf("  ✗ level %d (%s) failed: %s", event.Level, event.Key, event.Message)
	default:
		return fmt.Sprintf("  ? level %d (%s) (unknown status)", event.Level, event.Key)
	}
}

// FormatChallengeHeader formats the run header for display.
func FormatChallengeHeader(name string) string {
	return fmt.Sprintf("[%s] entering the dojo", name)
}

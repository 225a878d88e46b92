// Package trial keeps the training ledger: one record per attempt to
// take a pseudopotential through a dojo level, whether it passed or not.
// The ledger is advisory history; the authoritative validation state is
// the report embedded in the pseudopotential file.
package trial

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Record is one training attempt.
type Record struct {
	ID        string
	Pseudo    string // pseudopotential name
	Level     int
	Key       string // dojo report key of the level
	OK        bool
	StartedAt time.Time
	EndedAt   time.Time
}

// NewID returns a fresh trial identifier.
func NewID() string {
	return uuid.NewString()
}

// Stats summarizes the ledger.
type Stats struct {
	Pseudos int
	Trials  int
	Passed  int
}

// Store is the interface for the training ledger backend.
// Implementations: KuzuStore (persistent, cgo), MemStore (in-process).
type Store interface {
	io.Closer

	// Schema setup, called once before any record is inserted.
	InitSchema(ctx context.Context) error

	// AddTrial appends a trial record.
	AddTrial(ctx context.Context, rec Record) error

	// ListTrials returns all trials of one pseudopotential, oldest first.
	ListTrials(ctx context.Context, pseudoName string) ([]Record, error)

	// LastTrial returns the most recent trial of one pseudopotential,
	// or nil when the pseudopotential never trained.
	LastTrial(ctx context.Context, pseudoName string) (*Record, error)

	// Stats returns ledger-wide counts.
	Stats(ctx context.Context) (*Stats, error)
}

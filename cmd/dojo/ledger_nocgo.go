//go:build !cgo

package main

import (
	"context"

	"github.com/ctoher/pseudodojo/internal/trial"
)

// openLedger falls back to an in-memory ledger when the binary is built
// without cgo. Records do not survive the process.
func openLedger(ctx context.Context, _ string) (trial.Store, error) {
	store := trial.NewMemStore()
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	logger.Warn("built without cgo, trial ledger is in-memory only")
	return store, nil
}

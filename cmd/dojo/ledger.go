//go:build cgo

package main

import (
	"context"

	"github.com/ctoher/pseudodojo/internal/trial"
)

// openLedger opens the file-backed trial ledger at path and makes sure
// its schema exists.
func openLedger(ctx context.Context, path string) (trial.Store, error) {
	store, err := trial.NewKuzuFileStore(path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

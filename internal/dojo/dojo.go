// Package dojo stages pseudopotential validation: a coordinator runs a
// level-ordered sequence of masters against one pseudopotential, each
// master driving an external calculation workflow and writing its verdict
// into the potential's embedded dojo report.
package dojo

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/trial"
	"github.com/ctoher/pseudodojo/internal/work"
)

// MasterFactory constructs a fresh Master. The coordinator instantiates
// one master per factory for every challenged pseudopotential.
type MasterFactory func() Master

// Option configures a Dojo.
type Option func(*Dojo)

// WithMaxLevel truncates the training sequence: only masters with
// Level() <= max run.
func WithMaxLevel(max int) Option {
	return func(d *Dojo) { d.maxLevel = &max }
}

// WithLogger sets the structured logger shared by the coordinator and
// its trainers.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dojo) { d.log = log }
}

// WithLedger records every training attempt into the given store.
func WithLedger(s trial.Store) Option {
	return func(d *Dojo) { d.ledger = s }
}

// WithWorkRoot places the DOJO_<name> directories under root instead of
// the current directory.
func WithWorkRoot(root string) Option {
	return func(d *Dojo) { d.workRoot = root }
}

// Dojo coordinates a full training run: every registered level, in
// ascending order, against one pseudopotential at a time.
type Dojo struct {
	factories []MasterFactory // sorted by level
	log       *zap.Logger
	ledger    trial.Store
	progress  *ProgressReporter
	workRoot  string
	maxLevel  *int
}

// New validates the registry and builds a coordinator. Each factory is
// probed once for its level; two factories claiming the same level are a
// configuration error and fail construction with ErrDuplicateLevel.
func New(registry []MasterFactory, opts ...Option) (*Dojo, error) {
	d := &Dojo{
		log:      zap.NewNop(),
		progress: NewProgressReporter(),
	}
	for _, opt := range opts {
		opt(d)
	}

	type entry struct {
		level   int
		factory MasterFactory
	}
	var entries []entry
	seen := map[int]string{}
	for _, factory := range registry {
		m := factory()
		lvl := m.Level()
		if prev, dup := seen[lvl]; dup {
			return nil, fmt.Errorf("%w: %d claimed by %q and %q", ErrDuplicateLevel, lvl, prev, m.Key())
		}
		seen[lvl] = m.Key()
		entries = append(entries, entry{level: lvl, factory: factory})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].level < entries[j].level })

	for _, e := range entries {
		if d.maxLevel != nil && e.level > *d.maxLevel {
			break
		}
		d.factories = append(d.factories, e.factory)
	}
	return d, nil
}

// Progress returns a channel that emits training events.
func (d *Dojo) Progress() <-chan TrainingEvent {
	return d.progress.Subscribe()
}

// Close shuts down the progress reporter. Callers should invoke this
// when the coordinator is no longer needed.
func (d *Dojo) Close() {
	d.progress.Close()
}

// ChallengePath resolves a pseudopotential file and challenges it.
func (d *Dojo) ChallengePath(ctx context.Context, path string, rm work.RunMode) ([]*Trainer, error) {
	p, err := pseudo.FromFile(path)
	if err != nil {
		return nil, err
	}
	return d.ChallengePseudo(ctx, p, rm)
}

// ChallengePseudo takes p through every registered level in ascending
// order. Ineligible levels are skipped; an eligible level that fails
// aborts the run and the error surfaces to the caller, because training
// past a broken level would build on an unsound report. The trainer
// instances are returned for inspection even on failure.
func (d *Dojo) ChallengePseudo(ctx context.Context, p *pseudo.Pseudo, rm work.RunMode) ([]*Trainer, error) {
	workdir := filepath.Join(d.workRoot, "DOJO_"+p.Name())

	trainers := make([]*Trainer, 0, len(d.factories))
	for _, factory := range d.factories {
		trainers = append(trainers, NewTrainer(factory(), rm, d.log, d.ledger))
	}

	d.log.Info("challenging pseudopotential",
		zap.String("pseudo", p.Name()),
		zap.String("workdir", workdir),
		zap.Int("levels", len(trainers)))

	for _, tr := range trainers {
		m := tr.Master()
		if !tr.AcceptPseudo(p) {
			d.progress.Emit(TrainingEvent{
				Pseudo: p.Name(), Level: m.Level(), Key: m.Key(), Status: StatusSkipped,
			})
			continue
		}

		d.progress.Emit(TrainingEvent{
			Pseudo: p.Name(), Level: m.Level(), Key: m.Key(), Status: StatusWorking,
		})

		if err := tr.StartTraining(ctx, workdir); err != nil {
			d.progress.Emit(TrainingEvent{
				Pseudo: p.Name(), Level: m.Level(), Key: m.Key(),
				Status: StatusFailed, Message: err.Error(),
			})
			return trainers, err
		}

		d.progress.Emit(TrainingEvent{
			Pseudo: p.Name(), Level: m.Level(), Key: m.Key(), Status: StatusComplete,
		})
	}

	return trainers, nil
}

// DefaultRegistry wires the standard training sequence: hints at level
// 0, delta factor at level 1.
func DefaultRegistry(conv ConvergenceFactory, delta DeltaFactory, log *zap.Logger) []MasterFactory {
	return []MasterFactory{
		func() Master { return NewHintsMaster(conv, log) },
		func() Master { return NewDeltaFactorMaster(delta, log) },
	}
}

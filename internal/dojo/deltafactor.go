package dojo

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ctoher/pseudodojo/internal/flow"
	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/work"
)

// DeltaFactory builds the equation-of-state work for the delta-factor
// trial. Satisfied by *flow.DeltaFactory.
type DeltaFactory interface {
	WorkForPseudo(workdir string, rm work.RunMode, p *pseudo.Pseudo, kppa int) (work.Work, error)
}

// Compile-time check that the in-tree factory satisfies the contract.
var _ DeltaFactory = (*flow.DeltaFactory)(nil)

const (
	deltaLevel = 1
	deltaKey   = "delta_factor"

	// k-point density of the benchmark runs.
	deltaKppa = 1
)

// DeltaFactorMaster is the level-1 validator: one equation-of-state
// scan against the reference benchmark geometry.
type DeltaFactorMaster struct {
	factory DeltaFactory
	log     *zap.Logger
}

// NewDeltaFactorMaster creates the level-1 master. log may be nil.
func NewDeltaFactorMaster(factory DeltaFactory, log *zap.Logger) *DeltaFactorMaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeltaFactorMaster{factory: factory, log: log}
}

func (m *DeltaFactorMaster) Level() int  { return deltaLevel }
func (m *DeltaFactorMaster) Key() string { return deltaKey }

// RunChallenge runs the EOS scan under workdir/LEVEL_1 and dumps the
// raw volumes/energies as dojo_results.json in the work directory.
func (m *DeltaFactorMaster) RunChallenge(ctx context.Context, workdir string, p *pseudo.Pseudo, rm work.RunMode) (work.Results, error) {
	levelDir := filepath.Join(workdir, levelDirName(deltaLevel))

	w, err := m.factory.WorkForPseudo(filepath.Join(levelDir, "eos"), rm, p, deltaKppa)
	if err != nil {
		return nil, err
	}

	m.log.Info("running equation-of-state scan",
		zap.String("pseudo", p.Name()),
		zap.Int("kppa", deltaKppa))

	if err := w.Start(ctx, rm.ChunkSize()); err != nil {
		return nil, err
	}
	if err := w.Wait(); err != nil {
		return nil, err
	}
	results, err := w.Results()
	if err != nil {
		return nil, err
	}

	if err := jsonPrettyDump(results, w.PathInWorkdir("dojo_results.json")); err != nil {
		return nil, err
	}
	return results, nil
}

// BuildReport records an empty delta-factor fragment with an
// unconditionally true verdict. Acceptance thresholds for the delta
// factor and the fitted EOS parameters (e0, v0, b, bp and their
// percentage errors) are still to be defined; until then the fragment
// only marks the level as passed.
func (m *DeltaFactorMaster) BuildReport(results work.Results) (pseudo.Report, bool, error) {
	return pseudo.Report{deltaKey: map[string]any{}}, true, nil
}

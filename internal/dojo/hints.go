package dojo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ctoher/pseudodojo/internal/flow"
	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/work"
)

// ConvergenceFactory builds the cutoff-convergence work for the hints
// trial. Satisfied by *flow.ConvergenceFactory.
type ConvergenceFactory interface {
	WorkForPseudo(workdir string, p *pseudo.Pseudo, scan flow.EcutScan, rm work.RunMode, atolsMEV []float64) (work.Work, error)
}

// Compile-time check that the in-tree factory satisfies the contract.
var _ ConvergenceFactory = (*flow.ConvergenceFactory)(nil)

const (
	hintsLevel = 0
	hintsKey   = "hints"

	// Coarse bracketing stride and the floor of the refined rescan, in Ha.
	hintsEcutStart = 5.0
	hintsEcutStep  = 10.0
)

// HintsMaster is the level-0 validator. It brackets the energy-cutoff
// convergence window with a coarse iterative scan, rescans the bracket
// at unit stride, and records the low/normal/high cutoff hints.
type HintsMaster struct {
	factory ConvergenceFactory
	log     *zap.Logger
}

// NewHintsMaster creates the level-0 master. log may be nil.
func NewHintsMaster(factory ConvergenceFactory, log *zap.Logger) *HintsMaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &HintsMaster{factory: factory, log: log}
}

func (m *HintsMaster) Level() int  { return hintsLevel }
func (m *HintsMaster) Key() string { return hintsKey }

// RunChallenge runs the two-phase convergence search under
// workdir/LEVEL_0. Phase 1 scans iteratively at a coarse stride to
// bracket the window and is archived under ITERATIVE; phase 2 rescans
// [max(low-step, start), high+step) at unit stride with chunked
// dispatch. The refined results are dumped as dojo_results.json in the
// phase-2 work directory.
func (m *HintsMaster) RunChallenge(ctx context.Context, workdir string, p *pseudo.Pseudo, rm work.RunMode) (work.Results, error) {
	atols := flow.DefaultAtolsMEV
	levelDir := filepath.Join(workdir, levelDirName(hintsLevel))

	w, err := m.factory.WorkForPseudo(filepath.Join(levelDir, "bracket"), p, flow.Stride(hintsEcutStart, hintsEcutStep), rm, atols)
	if err != nil {
		return nil, err
	}

	// A leftover tree from an aborted run would shadow fresh results.
	if _, err := os.Stat(w.Workdir()); err == nil {
		if err := os.RemoveAll(w.Workdir()); err != nil {
			return nil, fmt.Errorf("clearing stale workdir %s: %w", w.Workdir(), err)
		}
	}

	m.log.Info("bracketing ecut convergence window",
		zap.String("pseudo", p.Name()),
		zap.Float64("start", hintsEcutStart),
		zap.Float64("step", hintsEcutStep))

	if err := w.Start(ctx, 1); err != nil {
		return nil, err
	}
	if err := w.Wait(); err != nil {
		return nil, err
	}
	coarse, err := w.Results()
	if err != nil {
		return nil, err
	}
	if err := w.Move("ITERATIVE"); err != nil {
		return nil, err
	}

	low, err := hintEcut(coarse, "low")
	if err != nil {
		return nil, err
	}
	high, err := hintEcut(coarse, "high")
	if err != nil {
		return nil, err
	}

	estart := low - hintsEcutStep
	if estart < hintsEcutStart {
		estart = hintsEcutStart
	}
	estop := high + hintsEcutStep

	var erange []float64
	for e := estart; e < estop; e++ {
		erange = append(erange, e)
	}

	m.log.Info("refining ecut hints",
		zap.String("pseudo", p.Name()),
		zap.Float64("estart", estart),
		zap.Float64("estop", estop))

	w, err = m.factory.WorkForPseudo(filepath.Join(levelDir, "scan"), p, flow.Explicit(erange), rm, atols)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx, rm.ChunkSize()); err != nil {
		return nil, err
	}
	if err := w.Wait(); err != nil {
		return nil, err
	}
	refined, err := w.Results()
	if err != nil {
		return nil, err
	}

	if err := jsonPrettyDump(refined, w.PathInWorkdir("dojo_results.json")); err != nil {
		return nil, err
	}
	return refined, nil
}

// BuildReport extracts the three cutoff hints. The verdict is
// unconditionally true for now; physics-based acceptance criteria for
// the hints themselves are still to be defined.
func (m *HintsMaster) BuildReport(results work.Results) (pseudo.Report, bool, error) {
	hints := map[string]any{}
	for _, key := range []string{"low", "normal", "high"} {
		v, ok := results[key]
		if !ok {
			return nil, false, fmt.Errorf("%w: %q", ErrMissingData, key)
		}
		hints[key] = v
	}
	return pseudo.Report{hintsKey: hints}, true, nil
}

// hintEcut pulls a hint's cutoff out of a convergence result mapping,
// tolerating the map shapes a JSON round trip produces.
func hintEcut(results work.Results, key string) (float64, error) {
	v, ok := results[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingData, key)
	}
	hint, ok := v.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a mapping", ErrMissingData, key)
	}
	switch e := hint["ecut"].(type) {
	case float64:
		return e, nil
	case int:
		return float64(e), nil
	default:
		return 0, fmt.Errorf("%w: %q has no numeric ecut", ErrMissingData, key)
	}
}

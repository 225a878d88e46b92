package flow

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/work"
)

// EcutScan describes which cutoffs a convergence work evaluates. An
// explicit point list takes precedence; with no list the scan runs
// iteratively from Start in Step increments until the energy stabilizes.
type EcutScan struct {
	Ecuts []float64
	Start float64
	Step  float64
}

// Stride returns an open-ended iterative scan.
func Stride(start, step float64) EcutScan {
	return EcutScan{Start: start, Step: step}
}

// Explicit returns a fixed-point scan.
func Explicit(ecuts []float64) EcutScan {
	return EcutScan{Ecuts: ecuts}
}

// Iterative reports whether the scan extends itself until convergence.
func (s EcutScan) Iterative() bool { return len(s.Ecuts) == 0 }

// DefaultAtolsMEV are the hint tolerances in meV, loosest first. They
// map onto the low, normal and high cutoff recommendations.
var DefaultAtolsMEV = []float64{10, 1, 0.1}

// maxIterativeEcut caps open-ended scans so a pathological potential
// cannot extend a work forever.
const maxIterativeEcut = 300.0

// ConvergenceFactory builds cutoff-convergence works for a
// pseudopotential. The zero value is unusable; Calc must be set.
type ConvergenceFactory struct {
	Calc Calculator
}

// WorkForPseudo builds the work unit scanning the given cutoffs. For an
// explicit scan the tasks are independent and honor the run mode's chunk
// size; an iterative scan is inherently sequential. Results carry the
// low/normal/high recommendations derived from atolsMEV plus the raw
// scan points.
func (f *ConvergenceFactory) WorkForPseudo(workdir string, p *pseudo.Pseudo, scan EcutScan, rm work.RunMode, atolsMEV []float64) (work.Work, error) {
	if f.Calc == nil {
		return nil, fmt.Errorf("flow: convergence factory has no calculator")
	}
	if len(atolsMEV) == 0 {
		atolsMEV = DefaultAtolsMEV
	}
	if len(atolsMEV) != 3 {
		return nil, fmt.Errorf("flow: expected 3 tolerances (low/normal/high), got %d", len(atolsMEV))
	}

	if scan.Iterative() {
		if scan.Step <= 0 {
			return nil, fmt.Errorf("flow: iterative scan needs a positive step")
		}
		return &iterativeWork{
			workdir: workdir,
			calc:    f.Calc,
			pseudo:  p,
			scan:    scan,
			atols:   atolsMEV,
			done:    make(chan struct{}),
		}, nil
	}

	tasks := make([]work.Task, len(scan.Ecuts))
	for i, ecut := range scan.Ecuts {
		ecut := ecut
		tasks[i] = work.TaskFunc{
			TaskName: fmt.Sprintf("ecut_%g", ecut),
			Fn: func(ctx context.Context, dir string) (work.Results, error) {
				etotal, err := f.Calc.Run(ctx, dir, p, ecut)
				if err != nil {
					return nil, err
				}
				return work.Results{"ecut": ecut, "etotal": etotal}, nil
			},
		}
	}

	ecuts := append([]float64(nil), scan.Ecuts...)
	condense := func(perTask []work.Results) (work.Results, error) {
		etotals := make([]float64, len(perTask))
		for i, r := range perTask {
			etotals[i] = r["etotal"].(float64)
		}
		return condenseHints(ecuts, etotals, atolsMEV)
	}

	return work.NewTaskWork(workdir, tasks, condense), nil
}

// condenseHints turns a scanned energy-vs-cutoff curve into the
// low/normal/high recommendations. The reference energy is the value at
// the highest cutoff; each recommendation is the smallest cutoff from
// which every energy stays within the tolerance of the reference.
func condenseHints(ecuts, etotals []float64, atolsMEV []float64) (work.Results, error) {
	if len(ecuts) != len(etotals) || len(ecuts) < 2 {
		return nil, fmt.Errorf("flow: convergence scan needs at least 2 points, got %d", len(ecuts))
	}

	ref := etotals[len(etotals)-1]

	// The reference trivially satisfies every tolerance; the curve only
	// counts as converged when the point before it is inside the
	// loosest tolerance too.
	if math.Abs(etotals[len(etotals)-2]-ref)*1000 > atolsMEV[0] {
		return nil, fmt.Errorf("flow: scan never converged within %g meV", atolsMEV[0])
	}

	keys := []string{"low", "normal", "high"}

	res := work.Results{
		"ecuts":   ecuts,
		"etotals": etotals,
	}
	for i, key := range keys {
		atol := atolsMEV[i]
		hint, ok := convergedFrom(ecuts, etotals, ref, atol)
		if !ok {
			return nil, fmt.Errorf("flow: scan never converged within %g meV", atol)
		}
		res[key] = map[string]any{"ecut": hint, "atol_mev": atol}
	}
	return res, nil
}

// convergedFrom finds the smallest cutoff from which all trailing
// energies are within atolMEV of ref.
func convergedFrom(ecuts, etotals []float64, ref, atolMEV float64) (float64, bool) {
	from := -1
	for i := len(etotals) - 1; i >= 0; i-- {
		if math.Abs(etotals[i]-ref)*1000 > atolMEV {
			break
		}
		from = i
	}
	if from < 0 {
		return 0, false
	}
	return ecuts[from], true
}

// Compile-time interface check.
var _ work.Work = (*iterativeWork)(nil)

// iterativeWork runs cutoff points one at a time, extending the scan by
// one step until the last two energies agree within the tightest
// tolerance. Chunked dispatch does not apply: point N+1 exists only
// after point N has been evaluated.
type iterativeWork struct {
	workdir string
	calc    Calculator
	pseudo  *pseudo.Pseudo
	scan    EcutScan
	atols   []float64

	mu       sync.Mutex
	started  bool
	finished bool
	err      error
	results  work.Results
	done     chan struct{}
}

func (w *iterativeWork) Start(ctx context.Context, _ int) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("flow: iterative work %s already started", w.workdir)
	}
	w.started = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.workdir, 0o755); err != nil {
		return fmt.Errorf("flow: creating workdir %s: %w", w.workdir, err)
	}

	go func() {
		res, err := w.run(ctx)
		w.mu.Lock()
		w.finished = true
		w.results = res
		w.err = err
		w.mu.Unlock()
		close(w.done)
	}()
	return nil
}

func (w *iterativeWork) run(ctx context.Context) (work.Results, error) {
	tight := w.atols[len(w.atols)-1]

	var ecuts, etotals []float64
	for ecut := w.scan.Start; ecut <= maxIterativeEcut; ecut += w.scan.Step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(w.workdir, fmt.Sprintf("ecut_%g", ecut))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("flow: creating task dir %s: %w", dir, err)
		}
		etotal, err := w.calc.Run(ctx, dir, w.pseudo, ecut)
		if err != nil {
			return nil, fmt.Errorf("flow: ecut %g: %w", ecut, err)
		}

		ecuts = append(ecuts, ecut)
		etotals = append(etotals, etotal)

		n := len(etotals)
		if n >= 2 && math.Abs(etotals[n-1]-etotals[n-2])*1000 <= tight {
			return condenseHints(ecuts, etotals, w.atols)
		}
	}
	return nil, fmt.Errorf("flow: no convergence below ecut %g for %s", maxIterativeEcut, w.pseudo.Name())
}

func (w *iterativeWork) Wait() error {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *iterativeWork) Results() (work.Results, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.finished {
		return nil, fmt.Errorf("flow: iterative work %s has not finished", w.workdir)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.results, nil
}

func (w *iterativeWork) Move(subdir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dst, err := moveTree(w.workdir, subdir)
	if err != nil {
		return err
	}
	w.workdir = dst
	return nil
}

func (w *iterativeWork) Workdir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.workdir
}

func (w *iterativeWork) PathInWorkdir(name string) string {
	return filepath.Join(w.Workdir(), name)
}

// moveTree renames dir into a sibling subdirectory of its parent.
func moveTree(dir, subdir string) (string, error) {
	dst := filepath.Join(filepath.Dir(dir), subdir)
	if err := os.Rename(dir, dst); err != nil {
		return "", fmt.Errorf("flow: moving %s to %s: %w", dir, dst, err)
	}
	return dst, nil
}

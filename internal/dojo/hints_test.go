package dojo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctoher/pseudodojo/internal/flow"
	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/work"
)

// fakeWork is a canned work.Work for factory-level tests.
type fakeWork struct {
	workdir string
	results work.Results
	started bool
	chunk   int
}

func (w *fakeWork) Start(_ context.Context, chunkSize int) error {
	w.started = true
	w.chunk = chunkSize
	return os.MkdirAll(w.workdir, 0o755)
}

func (w *fakeWork) Wait() error { return nil }

func (w *fakeWork) Results() (work.Results, error) { return w.results, nil }

func (w *fakeWork) Move(subdir string) error {
	dst := filepath.Join(filepath.Dir(w.workdir), subdir)
	if err := os.Rename(w.workdir, dst); err != nil {
		return err
	}
	w.workdir = dst
	return nil
}

func (w *fakeWork) Workdir() string { return w.workdir }

func (w *fakeWork) PathInWorkdir(name string) string { return filepath.Join(w.workdir, name) }

// fakeConvFactory returns canned works and records the scans requested.
type fakeConvFactory struct {
	works []*fakeWork
	scans []flow.EcutScan
	calls int
}

func (f *fakeConvFactory) WorkForPseudo(workdir string, _ *pseudo.Pseudo, scan flow.EcutScan, _ work.RunMode, _ []float64) (work.Work, error) {
	w := f.works[f.calls]
	w.workdir = workdir
	f.scans = append(f.scans, scan)
	f.calls++
	return w, nil
}

func hintResults(low, normal, high float64) work.Results {
	return work.Results{
		"low":    map[string]any{"ecut": low},
		"normal": map[string]any{"ecut": normal},
		"high":   map[string]any{"ecut": high},
	}
}

func TestHintsMaster_RunChallengeTwoPhases(t *testing.T) {
	p := newTestPseudo(t, "")
	workdir := filepath.Join(t.TempDir(), "DOJO_14si.pspnc")

	coarse := &fakeWork{results: hintResults(25, 35, 45)}
	refined := &fakeWork{results: hintResults(22, 33, 41)}
	factory := &fakeConvFactory{works: []*fakeWork{coarse, refined}}

	m := NewHintsMaster(factory, nil)
	res, err := m.RunChallenge(context.Background(), workdir, p, work.Parallel(4))
	require.NoError(t, err)

	// Phase 1: open-ended bracketing stride.
	require.Len(t, factory.scans, 2)
	assert.True(t, factory.scans[0].Iterative())
	assert.Equal(t, 5.0, factory.scans[0].Start)
	assert.Equal(t, 10.0, factory.scans[0].Step)

	// Phase 1 tree archived.
	assert.DirExists(t, filepath.Join(workdir, "LEVEL_0", "ITERATIVE"))

	// Phase 2: unit-stride rescan of [low-10, high+10).
	scan := factory.scans[1]
	require.False(t, scan.Iterative())
	assert.Equal(t, 15.0, scan.Ecuts[0])
	assert.Equal(t, 54.0, scan.Ecuts[len(scan.Ecuts)-1])
	assert.Equal(t, 4, refined.chunk)

	// The refined results are returned and dumped for audit.
	assert.Equal(t, refined.results, res)
	assert.FileExists(t, filepath.Join(workdir, "LEVEL_0", "scan", "dojo_results.json"))
}

func TestHintsMaster_RefinedRangeClampedToFloor(t *testing.T) {
	p := newTestPseudo(t, "")
	workdir := filepath.Join(t.TempDir(), "DOJO_14si.pspnc")

	// Coarse low of 10 would put the refined start below the 5 Ha floor.
	coarse := &fakeWork{results: hintResults(10, 15, 20)}
	refined := &fakeWork{results: hintResults(8, 14, 19)}
	factory := &fakeConvFactory{works: []*fakeWork{coarse, refined}}

	m := NewHintsMaster(factory, nil)
	_, err := m.RunChallenge(context.Background(), workdir, p, work.Sequential())
	require.NoError(t, err)

	scan := factory.scans[1]
	assert.Equal(t, 5.0, scan.Ecuts[0])
}

func TestHintsMaster_CoarseResultsMissingBracket(t *testing.T) {
	p := newTestPseudo(t, "")

	coarse := &fakeWork{results: work.Results{"low": map[string]any{"ecut": 20.0}}}
	factory := &fakeConvFactory{works: []*fakeWork{coarse}}

	m := NewHintsMaster(factory, nil)
	_, err := m.RunChallenge(context.Background(), filepath.Join(t.TempDir(), "w"), p, work.Sequential())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestHintsMaster_BuildReport(t *testing.T) {
	m := NewHintsMaster(&fakeConvFactory{}, nil)

	rep, ok, err := m.BuildReport(hintResults(20, 30, 40))
	require.NoError(t, err)
	assert.True(t, ok)

	hints := rep["hints"].(map[string]any)
	assert.Contains(t, hints, "low")
	assert.Contains(t, hints, "normal")
	assert.Contains(t, hints, "high")
}

func TestHintsMaster_BuildReportMissingKey(t *testing.T) {
	m := NewHintsMaster(&fakeConvFactory{}, nil)

	results := work.Results{
		"low":  map[string]any{"ecut": 20.0},
		"high": map[string]any{"ecut": 40.0},
	}
	_, _, err := m.BuildReport(results)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingData)
	assert.Contains(t, err.Error(), "normal")
}

func TestHintsMaster_Identity(t *testing.T) {
	m := NewHintsMaster(&fakeConvFactory{}, nil)
	assert.Equal(t, 0, m.Level())
	assert.Equal(t, "hints", m.Key())
}

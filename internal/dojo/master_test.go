package dojo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/trial"
	"github.com/ctoher/pseudodojo/internal/work"
)

// stubMaster is a test double with a fixed level/key and pluggable
// challenge and report behavior.
type stubMaster struct {
	level     int
	key       string
	challenge func(ctx context.Context, workdir string, p *pseudo.Pseudo, rm work.RunMode) (work.Results, error)
	report    func(results work.Results) (pseudo.Report, bool, error)
}

func (m *stubMaster) Level() int  { return m.level }
func (m *stubMaster) Key() string { return m.key }

func (m *stubMaster) RunChallenge(ctx context.Context, workdir string, p *pseudo.Pseudo, rm work.RunMode) (work.Results, error) {
	if m.challenge != nil {
		return m.challenge(ctx, workdir, p, rm)
	}
	return work.Results{}, nil
}

func (m *stubMaster) BuildReport(results work.Results) (pseudo.Report, bool, error) {
	if m.report != nil {
		return m.report(results)
	}
	return pseudo.Report{m.key: map[string]any{}}, true, nil
}

// newTestPseudo writes a potential file (optionally with a pre-existing
// report) and loads it.
func newTestPseudo(t *testing.T, reportSection string) *pseudo.Pseudo {
	t.Helper()
	content := "potential payload\n"
	if reportSection != "" {
		content += "<DOJO_REPORT>\n" + reportSection + "\n</DOJO_REPORT>\n"
	}
	path := filepath.Join(t.TempDir(), "14si.pspnc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	p, err := pseudo.FromFile(path)
	require.NoError(t, err)
	return p
}

func TestAcceptPseudo_EligibilityMatrix(t *testing.T) {
	untested := newTestPseudo(t, "")
	atLevel0 := newTestPseudo(t, `{"hints": {}}`)
	atLevel1 := newTestPseudo(t, `{"hints": {}, "delta_factor": {}}`)

	level0 := func() *Trainer {
		return NewTrainer(&stubMaster{level: 0, key: "hints"}, work.Sequential(), nil, nil)
	}
	level1 := func() *Trainer {
		return NewTrainer(&stubMaster{level: 1, key: "delta_factor"}, work.Sequential(), nil, nil)
	}

	assert.True(t, level0().AcceptPseudo(untested))
	assert.False(t, level0().AcceptPseudo(atLevel0))
	assert.False(t, level0().AcceptPseudo(atLevel1))

	assert.False(t, level1().AcceptPseudo(untested))
	assert.True(t, level1().AcceptPseudo(atLevel0))
	assert.False(t, level1().AcceptPseudo(atLevel1))
}

func TestAcceptPseudo_BindsOnlyOnSuccess(t *testing.T) {
	tr := NewTrainer(&stubMaster{level: 1, key: "delta_factor"}, work.Sequential(), nil, nil)
	untested := newTestPseudo(t, "")

	require.False(t, tr.AcceptPseudo(untested))
	assert.Equal(t, StateIdle, tr.State())
	assert.Nil(t, tr.Pseudo())

	atLevel0 := newTestPseudo(t, `{"hints": {}}`)
	require.True(t, tr.AcceptPseudo(atLevel0))
	assert.Equal(t, StateAccepted, tr.State())
	assert.Same(t, atLevel0, tr.Pseudo())
}

func TestStartTraining_RequiresAcceptance(t *testing.T) {
	tr := NewTrainer(&stubMaster{level: 0, key: "hints"}, work.Sequential(), nil, nil)
	err := tr.StartTraining(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestStartTraining_HappyPathPersistsReportAndAudit(t *testing.T) {
	p := newTestPseudo(t, "")
	workdir := filepath.Join(t.TempDir(), "DOJO_14si.pspnc")

	m := &stubMaster{
		level: 0,
		key:   "hints",
		challenge: func(ctx context.Context, wd string, _ *pseudo.Pseudo, _ work.RunMode) (work.Results, error) {
			return work.Results{"low": map[string]any{"ecut": 20.0}}, nil
		},
		report: func(results work.Results) (pseudo.Report, bool, error) {
			return pseudo.Report{"hints": results["low"]}, true, nil
		},
	}

	tr := NewTrainer(m, work.Sequential(), nil, nil)
	require.True(t, tr.AcceptPseudo(p))
	require.NoError(t, tr.StartTraining(context.Background(), workdir))

	assert.Equal(t, StateTrained, tr.State())
	assert.FileExists(t, filepath.Join(workdir, "LEVEL_0", "report.json"))

	rep := p.ReadDojoReport()
	assert.Contains(t, rep, "hints")
}

func TestStartTraining_FalseVerdictKeepsAuditSkipsReport(t *testing.T) {
	p := newTestPseudo(t, "")
	workdir := filepath.Join(t.TempDir(), "DOJO_14si.pspnc")

	m := &stubMaster{
		level: 0,
		key:   "hints",
		report: func(results work.Results) (pseudo.Report, bool, error) {
			return pseudo.Report{"hints": map[string]any{}}, false, nil
		},
	}

	tr := NewTrainer(m, work.Sequential(), nil, nil)
	require.True(t, tr.AcceptPseudo(p))

	err := tr.StartTraining(context.Background(), workdir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrainingFailed)
	assert.Equal(t, StateFailed, tr.State())

	// Audit artifact written even though the verdict was false.
	assert.FileExists(t, filepath.Join(workdir, "LEVEL_0", "report.json"))
	assert.Empty(t, p.ReadDojoReport())
}

func TestStartTraining_ChallengeErrorFailsSession(t *testing.T) {
	p := newTestPseudo(t, "")
	boom := errors.New("queue rejected the job")

	m := &stubMaster{
		level: 0,
		key:   "hints",
		challenge: func(ctx context.Context, wd string, _ *pseudo.Pseudo, _ work.RunMode) (work.Results, error) {
			return nil, boom
		},
	}

	tr := NewTrainer(m, work.Sequential(), nil, nil)
	require.True(t, tr.AcceptPseudo(p))

	err := tr.StartTraining(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, tr.State())
	assert.Len(t, tr.Errors(), 1)
}

func TestStartTraining_RecordsTrialsInLedger(t *testing.T) {
	ctx := context.Background()
	ledger := trial.NewMemStore()

	p := newTestPseudo(t, "")
	tr := NewTrainer(&stubMaster{level: 0, key: "hints"}, work.Sequential(), nil, ledger)
	require.True(t, tr.AcceptPseudo(p))
	require.NoError(t, tr.StartTraining(ctx, filepath.Join(t.TempDir(), "w")))

	trials, err := ledger.ListTrials(ctx, p.Name())
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.True(t, trials[0].OK)
	assert.Equal(t, 0, trials[0].Level)
	assert.Equal(t, "hints", trials[0].Key)
}

func TestWriteDojoReport_ConflictWithoutOverwrite(t *testing.T) {
	p := newTestPseudo(t, `{"hints": {"low": {"ecut": 20}}}`)

	tr := NewTrainer(&stubMaster{level: 1, key: "delta_factor"}, work.Sequential(), nil, nil)
	require.True(t, tr.AcceptPseudo(p))

	err := tr.WriteDojoReport(pseudo.Report{"hints": map[string]any{"low": map[string]any{"ecut": 99.0}}}, false, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverwriteConflict)

	// No partial write: the old value survives untouched.
	rep := p.ReadDojoReport()
	hints := rep["hints"].(map[string]any)
	low := hints["low"].(map[string]any)
	assert.EqualValues(t, 20, low["ecut"])
}

func TestWriteDojoReport_OverwritePermitted(t *testing.T) {
	p := newTestPseudo(t, `{"hints": {"low": {"ecut": 20}}}`)

	tr := NewTrainer(&stubMaster{level: 1, key: "delta_factor"}, work.Sequential(), nil, nil)
	require.True(t, tr.AcceptPseudo(p))

	err := tr.WriteDojoReport(pseudo.Report{"hints": map[string]any{"low": map[string]any{"ecut": 99.0}}}, true, false)
	require.NoError(t, err)

	rep := p.ReadDojoReport()
	low := rep["hints"].(map[string]any)["low"].(map[string]any)
	assert.EqualValues(t, 99, low["ecut"])
}

func TestWriteDojoReport_DisjointMergeIsUnion(t *testing.T) {
	p := newTestPseudo(t, `{"hints": {"low": {"ecut": 20}}}`)

	tr := NewTrainer(&stubMaster{level: 1, key: "delta_factor"}, work.Sequential(), nil, nil)
	require.True(t, tr.AcceptPseudo(p))

	err := tr.WriteDojoReport(pseudo.Report{"delta_factor": map[string]any{}}, false, false)
	require.NoError(t, err)

	rep := p.ReadDojoReport()
	assert.Contains(t, rep, "hints")
	assert.Contains(t, rep, "delta_factor")
}

func TestWriteDojoReport_SessionErrorsBlockWrite(t *testing.T) {
	p := newTestPseudo(t, "")

	tr := NewTrainer(&stubMaster{level: 0, key: "hints"}, work.Sequential(), nil, nil)
	require.True(t, tr.AcceptPseudo(p))
	tr.errs = append(tr.errs, errors.New("earlier failure"))

	err := tr.WriteDojoReport(pseudo.Report{"hints": map[string]any{}}, false, false)
	require.Error(t, err)

	// ignoreErrors overrides the guard.
	require.NoError(t, tr.WriteDojoReport(pseudo.Report{"hints": map[string]any{}}, false, true))
}

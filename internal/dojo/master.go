package dojo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/trial"
	"github.com/ctoher/pseudodojo/internal/work"
)

// Master is one level's validator. Implementations are stateless: the
// pseudopotential under training is threaded through every call rather
// than bound to the master.
type Master interface {
	// Level is the master's fixed ordinal in the training sequence.
	Level() int

	// Key is the report key the master writes, e.g. "hints".
	Key() string

	// RunChallenge drives the external work for this level under
	// workdir (the pseudopotential's DOJO_<name> directory) and returns
	// the raw results.
	RunChallenge(ctx context.Context, workdir string, p *pseudo.Pseudo, rm work.RunMode) (work.Results, error)

	// BuildReport maps raw results into a report plus the level's
	// success verdict. Results lacking an expected sub-key must fail
	// with ErrMissingData.
	BuildReport(results work.Results) (pseudo.Report, bool, error)
}

// State is a trainer's position in its session lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateAccepted State = "accepted"
	StateTrained  State = "trained"
	StateFailed   State = "failed"
)

// Trainer runs one master against one pseudopotential. It owns the
// ephemeral session: the bound pseudopotential, the accumulated errors
// and the idle → accepted → trained|failed state machine.
type Trainer struct {
	master  Master
	runmode work.RunMode
	log     *zap.Logger
	ledger  trial.Store // may be nil

	state  State
	pseudo *pseudo.Pseudo
	errs   []error
}

// NewTrainer creates an idle trainer for the given master. log may be
// nil (a no-op logger is substituted); ledger may be nil.
func NewTrainer(m Master, rm work.RunMode, log *zap.Logger, ledger trial.Store) *Trainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trainer{
		master:  m,
		runmode: rm,
		log:     log,
		ledger:  ledger,
		state:   StateIdle,
	}
}

// Master returns the trainer's validator.
func (t *Trainer) Master() Master { return t.master }

// State returns the trainer's session state.
func (t *Trainer) State() State { return t.state }

// Pseudo returns the bound pseudopotential, nil while idle.
func (t *Trainer) Pseudo() *pseudo.Pseudo { return t.pseudo }

// Errors returns the session's accumulated errors.
func (t *Trainer) Errors() []error { return t.errs }

// AcceptPseudo checks whether this trainer's master may train p: a
// level-0 master trains untested pseudopotentials, a level-L master
// trains those currently at level L-1. On success the pseudopotential
// is bound and the trainer moves to the accepted state; on failure
// nothing changes. The check has no other side effects and may be
// repeated.
func (t *Trainer) AcceptPseudo(p *pseudo.Pseudo) bool {
	level := t.master.Level()

	var ready bool
	current, tested := p.DojoLevel()
	if !tested {
		ready = level == 0
	} else {
		ready = current == level-1
	}

	if !ready {
		t.log.Info("cannot train this pseudopotential at this level",
			zap.String("pseudo", p.Name()),
			zap.Int("level", level),
			zap.String("key", t.master.Key()))
		return false
	}

	t.log.Info("pseudopotential accepted for training",
		zap.String("pseudo", p.Name()),
		zap.Int("level", level),
		zap.String("key", t.master.Key()))

	t.pseudo = p
	t.state = StateAccepted
	return true
}

// StartTraining runs the full level: challenge, report, persistence. The
// raw challenge results are always dumped as LEVEL_<n>/report.json
// before the verdict is examined, so the audit artifact survives a
// failed level. On a true verdict the structured report is merged into
// the pseudopotential; a false verdict fails with ErrTrainingFailed.
func (t *Trainer) StartTraining(ctx context.Context, workdir string) error {
	if t.state != StateAccepted {
		return fmt.Errorf("dojo: trainer for level %d is %s, not accepted", t.master.Level(), t.state)
	}

	started := time.Now().UTC()

	fail := func(err error) error {
		t.state = StateFailed
		t.errs = append(t.errs, err)
		t.recordTrial(ctx, started, false)
		return err
	}

	results, err := t.master.RunChallenge(ctx, workdir, t.pseudo, t.runmode)
	if err != nil {
		return fail(fmt.Errorf("dojo: level %d challenge for %s: %w", t.master.Level(), t.pseudo.Name(), err))
	}

	auditPath := filepath.Join(workdir, levelDirName(t.master.Level()), "report.json")
	if err := jsonPrettyDump(results, auditPath); err != nil {
		return fail(err)
	}

	report, ok, err := t.master.BuildReport(results)
	if err != nil {
		return fail(fmt.Errorf("dojo: level %d report for %s: %w", t.master.Level(), t.pseudo.Name(), err))
	}

	if !ok {
		return fail(fmt.Errorf("%w: level %d verdict is not ok for %s", ErrTrainingFailed, t.master.Level(), t.pseudo.Name()))
	}

	if err := t.WriteDojoReport(report, false, false); err != nil {
		return fail(err)
	}

	t.state = StateTrained
	t.recordTrial(ctx, started, true)
	return nil
}

// WriteDojoReport merges report into the pseudopotential's persisted
// report and writes the union back. A key already present fails with
// ErrOverwriteConflict unless overwriteData permits it, and nothing is
// persisted in that case. Accumulated session errors block the write
// unless ignoreErrors is set.
func (t *Trainer) WriteDojoReport(report pseudo.Report, overwriteData, ignoreErrors bool) error {
	if t.pseudo == nil {
		return fmt.Errorf("dojo: no pseudopotential bound to level %d trainer", t.master.Level())
	}
	if len(t.errs) > 0 && !ignoreErrors {
		return fmt.Errorf("dojo: refusing to update dojo report of %s with %d session errors pending",
			t.pseudo.Name(), len(t.errs))
	}

	old := t.pseudo.ReadDojoReport()
	for key := range report {
		if _, exists := old[key]; exists && !overwriteData {
			return fmt.Errorf("%w: %q in report of %s", ErrOverwriteConflict, key, t.pseudo.Name())
		}
	}

	for key, fragment := range report {
		old[key] = fragment
	}
	return t.pseudo.WriteDojoReport(old)
}

// recordTrial appends this session's outcome to the ledger, if one is
// configured. Ledger failures are logged, never fatal: the report on the
// pseudopotential is the source of truth.
func (t *Trainer) recordTrial(ctx context.Context, started time.Time, ok bool) {
	if t.ledger == nil {
		return
	}
	rec := trial.Record{
		ID:        trial.NewID(),
		Pseudo:    t.pseudo.Name(),
		Level:     t.master.Level(),
		Key:       t.master.Key(),
		OK:        ok,
		StartedAt: started,
		EndedAt:   time.Now().UTC(),
	}
	if err := t.ledger.AddTrial(ctx, rec); err != nil {
		t.log.Warn("failed to record trial",
			zap.String("pseudo", t.pseudo.Name()),
			zap.Int("level", t.master.Level()),
			zap.Error(err))
	}
}

// levelDirName is the per-level work subdirectory under DOJO_<name>.
func levelDirName(level int) string {
	return fmt.Sprintf("LEVEL_%d", level)
}

// jsonPrettyDump writes v as human-readable JSON, creating parent
// directories as needed.
func jsonPrettyDump(v any, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dojo: preparing %s: %w", path, err)
	}
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("dojo: encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(enc, '\n'), 0o644); err != nil {
		return fmt.Errorf("dojo: writing %s: %w", path, err)
	}
	return nil
}

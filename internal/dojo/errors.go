package dojo

import "errors"

// Sentinel errors for the failure modes the trainer distinguishes.
// Ineligibility is not one of them: AcceptPseudo reports it as a plain
// boolean and the coordinator skips the level.
var (
	// ErrDuplicateLevel: two registered masters claim the same level.
	// Raised at coordinator construction, never at run time.
	ErrDuplicateLevel = errors.New("dojo: duplicate master level")

	// ErrMissingData: challenge results lack a sub-key the report needs.
	ErrMissingData = errors.New("dojo: missing data in results")

	// ErrOverwriteConflict: the persisted report already holds a key the
	// new report wants to write and overwriting was not permitted.
	ErrOverwriteConflict = errors.New("dojo: report key already present")

	// ErrTrainingFailed: the master judged its own results not ok.
	ErrTrainingFailed = errors.New("dojo: training failed")
)

package work

// Mode selects how a work's tasks are dispatched.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// RunMode is the execution configuration shared by every trainer in a
// coordinator run. Treat values as immutable once constructed.
type RunMode struct {
	Mode  Mode `yaml:"mode"`
	Chunk int  `yaml:"chunk_size,omitempty"`
}

// Sequential returns a RunMode that dispatches one task at a time.
func Sequential() RunMode {
	return RunMode{Mode: ModeSequential}
}

// Parallel returns a RunMode that dispatches up to chunk tasks at once.
func Parallel(chunk int) RunMode {
	return RunMode{Mode: ModeParallel, Chunk: chunk}
}

// ChunkSize returns the effective dispatch width: 1 for sequential mode
// or an unset chunk, the configured chunk otherwise.
func (rm RunMode) ChunkSize() int {
	if rm.Mode != ModeParallel || rm.Chunk < 1 {
		return 1
	}
	return rm.Chunk
}

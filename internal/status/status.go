// Package status inspects the training state of pseudopotentials: which
// levels are certified in the embedded report and which level work trees
// exist on disk.
package status

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctoher/pseudodojo/internal/pseudo"
)

// LevelInfo describes the state of a single training level.
type LevelInfo struct {
	Level    int
	Key      string // report key written at the level
	Trained  bool   // key present in the embedded report
	AuditDir string // LEVEL_<n> work directory when it exists, empty otherwise
}

// PseudoStatus holds the training status of one pseudopotential.
type PseudoStatus struct {
	Name      string
	Levels    []LevelInfo
	NextLevel int // -1 if all levels are trained
}

// ScanLevelDirs checks which LEVEL_<n> work directories exist inside a
// DOJO_<name> workdir. Returns the level numbers that have one.
func ScanLevelDirs(workdir string) []int {
	var found []int
	for level := 0; level <= pseudo.MaxLevel(); level++ {
		path := filepath.Join(workdir, fmt.Sprintf("LEVEL_%d", level))
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			found = append(found, level)
		}
	}
	return found
}

// NextLevel returns the next level to train given the certified levels.
// Returns -1 if every level is trained.
func NextLevel(trained []int) int {
	if len(trained) == 0 {
		return 0
	}
	max := trained[0]
	for _, lvl := range trained[1:] {
		if lvl > max {
			max = lvl
		}
	}
	next := max + 1
	if next > pseudo.MaxLevel() {
		return -1
	}
	return next
}

// GetPseudoStatus reads a pseudopotential file and reports its training
// state, cross-referencing the DOJO_<name> work tree under workRoot.
func GetPseudoStatus(path, workRoot string) (*PseudoStatus, error) {
	p, err := pseudo.FromFile(path)
	if err != nil {
		return nil, err
	}

	workdir := filepath.Join(workRoot, "DOJO_"+p.Name())
	levelDirs := make(map[int]bool)
	for _, lvl := range ScanLevelDirs(workdir) {
		levelDirs[lvl] = true
	}

	report := p.ReadDojoReport()

	var trained []int
	levels := make([]LevelInfo, 0, pseudo.MaxLevel()+1)
	for level := 0; level <= pseudo.MaxLevel(); level++ {
		key, ok := pseudo.LevelKey(level)
		if !ok {
			continue
		}
		_, hasKey := report[key]
		if hasKey {
			trained = append(trained, level)
		}
		var auditDir string
		if levelDirs[level] {
			auditDir = filepath.Join(workdir, fmt.Sprintf("LEVEL_%d", level))
		}
		levels = append(levels, LevelInfo{
			Level:    level,
			Key:      key,
			Trained:  hasKey,
			AuditDir: auditDir,
		})
	}

	return &PseudoStatus{
		Name:      p.Name(),
		Levels:    levels,
		NextLevel: NextLevel(trained),
	}, nil
}

// Package config loads project-level settings for a dojo run from a
// dojo.yml file next to the pseudopotentials.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ctoher/pseudodojo/internal/work"
)

// ProjectConfig holds the settings loaded from dojo.yml.
type ProjectConfig struct {
	// RunMode is shared by every trainer in the run.
	RunMode work.RunMode `yaml:"runmode,omitempty"`

	// MaxLevel truncates the training sequence. Negative means no cap.
	MaxLevel int `yaml:"max_level,omitempty"`

	// Launcher is the argv of the external cutoff-scan command.
	Launcher []string `yaml:"launcher,omitempty"`

	// EOSLauncher is the argv of the external equation-of-state command.
	EOSLauncher []string `yaml:"eos_launcher,omitempty"`

	// LedgerPath enables the persistent training ledger when set.
	LedgerPath string `yaml:"ledger_path,omitempty"`

	// WorkRoot is where the DOJO_<name> directories are created.
	WorkRoot string `yaml:"work_root,omitempty"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose,omitempty"`
}

// Load attempts to read dojo.yml or dojo.yaml from the given directory.
// Returns a default config (not an error) if no config file exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"dojo.yml", "dojo.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		cfg := defaults()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return defaults(), nil
}

func defaults() *ProjectConfig {
	return &ProjectConfig{
		RunMode:  work.Sequential(),
		MaxLevel: -1,
	}
}

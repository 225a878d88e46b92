// Package gw holds the glue for harvesting GW calculation output: a
// setup spec read from spec.in and a looper hook that visits every
// structure in the setup. How a looper walks a structure's output tree
// is its own business.
package gw

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Mode selects what a structure visit operates on.
type Mode string

const (
	ModeInput  Mode = "i"
	ModeOutput Mode = "o"
)

// Spec is the GW setup descriptor persisted as spec.in.
type Spec struct {
	// Code is the electronic-structure code the setup targets,
	// e.g. "ABINIT" or "VASP".
	Code string `json:"code"`

	// Source is the directory holding one output subtree per structure.
	Source string `json:"source"`

	// Structures lists the structures of the setup.
	Structures []string `json:"structures"`
}

// ReadSpec decodes a spec.in file.
func ReadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gw: reading %s: %w", path, err)
	}
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("gw: decoding %s: %w", path, err)
	}
	if s.Code == "" {
		return nil, fmt.Errorf("gw: %s names no code", path)
	}
	return &s, nil
}

// StructureLooper visits one structure of a GW setup.
type StructureLooper interface {
	HandleStructure(spec *Spec, structure string, mode Mode) error
}

// LoopStructures visits every structure of the setup in order.
func (s *Spec) LoopStructures(mode Mode, looper StructureLooper) error {
	for _, structure := range s.Structures {
		if err := looper.HandleStructure(s, structure, mode); err != nil {
			return fmt.Errorf("gw: structure %s: %w", structure, err)
		}
	}
	return nil
}

// PlotHarvester collects per-structure GW results into plot rows of the
// form "structure key value". It expects each structure's processed
// output as <source>/<structure>/results.json.
type PlotHarvester struct {
	Out io.Writer
}

func (h *PlotHarvester) HandleStructure(spec *Spec, structure string, mode Mode) error {
	if mode != ModeOutput {
		return fmt.Errorf("harvesting supports output mode only, got %q", mode)
	}

	path := filepath.Join(spec.Source, structure, "results.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var results map[string]float64
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(h.Out, "%s %s %g\n", structure, k, results[k]); err != nil {
			return err
		}
	}
	return nil
}

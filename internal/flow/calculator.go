// Package flow builds executable work units for the dojo trainers: the
// cutoff-convergence scans behind the hints trial and the equation-of-state
// scan behind the delta-factor trial. The electronic-structure code itself
// stays outside the process boundary; calculators launch a configured
// command and read its results file.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ctoher/pseudodojo/internal/pseudo"
)

// Calculator evaluates one total energy (eV) for a pseudopotential at a
// given plane-wave cutoff. dir is the task's private directory.
type Calculator interface {
	Run(ctx context.Context, dir string, p *pseudo.Pseudo, ecut float64) (float64, error)
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(ctx context.Context, dir string, p *pseudo.Pseudo, ecut float64) (float64, error)

func (f CalculatorFunc) Run(ctx context.Context, dir string, p *pseudo.Pseudo, ecut float64) (float64, error) {
	return f(ctx, dir, p, ecut)
}

// EOSCalculator evaluates one equation-of-state point: the total energy
// (eV) and cell volume (A^3) at a volume scaling vratio relative to the
// equilibrium guess, with k-point density kppa.
type EOSCalculator interface {
	Run(ctx context.Context, dir string, p *pseudo.Pseudo, vratio float64, kppa int) (etotal, volume float64, err error)
}

// EOSCalculatorFunc adapts a function to EOSCalculator.
type EOSCalculatorFunc func(ctx context.Context, dir string, p *pseudo.Pseudo, vratio float64, kppa int) (float64, float64, error)

func (f EOSCalculatorFunc) Run(ctx context.Context, dir string, p *pseudo.Pseudo, vratio float64, kppa int) (float64, float64, error) {
	return f(ctx, dir, p, vratio, kppa)
}

// ScriptCalculator launches an external command once per task. The
// command runs with the task directory as its working directory and the
// calculation parameters in the environment (DOJO_PSEUDO, DOJO_ECUT,
// DOJO_WORKDIR for cutoff scans; DOJO_VRATIO and DOJO_KPPA additionally
// for EOS points). It must leave a results.json in the task directory.
type ScriptCalculator struct {
	// Command is the launcher argv, e.g. {"abinit-run.sh"}.
	Command []string
}

// Compile-time interface check.
var _ Calculator = (*ScriptCalculator)(nil)

func (s *ScriptCalculator) Run(ctx context.Context, dir string, p *pseudo.Pseudo, ecut float64) (float64, error) {
	res, err := launchScript(ctx, s.Command, dir, map[string]string{
		"DOJO_PSEUDO":  p.Path(),
		"DOJO_ECUT":    fmt.Sprintf("%g", ecut),
		"DOJO_WORKDIR": dir,
	})
	if err != nil {
		return 0, err
	}
	etotal, ok := res["etotal"].(float64)
	if !ok {
		return 0, fmt.Errorf("flow: results.json in %s has no numeric etotal", dir)
	}
	return etotal, nil
}

// ScriptEOSCalculator is the equation-of-state counterpart of
// ScriptCalculator, sharing the same launcher contract.
type ScriptEOSCalculator struct {
	Command []string
}

// Compile-time interface check.
var _ EOSCalculator = (*ScriptEOSCalculator)(nil)

func (s *ScriptEOSCalculator) Run(ctx context.Context, dir string, p *pseudo.Pseudo, vratio float64, kppa int) (float64, float64, error) {
	res, err := launchScript(ctx, s.Command, dir, map[string]string{
		"DOJO_PSEUDO":  p.Path(),
		"DOJO_VRATIO":  fmt.Sprintf("%g", vratio),
		"DOJO_KPPA":    fmt.Sprintf("%d", kppa),
		"DOJO_WORKDIR": dir,
	})
	if err != nil {
		return 0, 0, err
	}
	etotal, ok1 := res["etotal"].(float64)
	volume, ok2 := res["volume"].(float64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("flow: results.json in %s lacks etotal/volume", dir)
	}
	return etotal, volume, nil
}

// launchScript runs a launcher argv in dir and decodes results.json.
func launchScript(ctx context.Context, argv []string, dir string, env map[string]string) (map[string]any, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("flow: script calculator has no command configured")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("flow: launcher %s failed: %w (output: %s)", argv[0], err, out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "results.json"))
	if err != nil {
		return nil, fmt.Errorf("flow: reading launcher results: %w", err)
	}
	var res map[string]any
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("flow: decoding launcher results: %w", err)
	}
	return res, nil
}

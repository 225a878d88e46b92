package flow

import (
	"context"
	"fmt"

	"github.com/ctoher/pseudodojo/internal/pseudo"
	"github.com/ctoher/pseudodojo/internal/work"
)

// eosVRatios are the volume scalings of the seven-point equation-of-state
// scan, centered on the equilibrium guess.
var eosVRatios = []float64{0.94, 0.96, 0.98, 1.00, 1.02, 1.04, 1.06}

// DeltaFactory builds equation-of-state works for the delta-factor
// benchmark. Calc must be set.
type DeltaFactory struct {
	Calc EOSCalculator
}

// WorkForPseudo builds a seven-point EOS scan at the given k-point
// density. The points are independent, so the work honors the run mode's
// chunk size. Results carry the scanned volumes and energies ordered by
// volume ratio.
func (f *DeltaFactory) WorkForPseudo(workdir string, rm work.RunMode, p *pseudo.Pseudo, kppa int) (work.Work, error) {
	if f.Calc == nil {
		return nil, fmt.Errorf("flow: delta factory has no calculator")
	}
	if kppa < 1 {
		return nil, fmt.Errorf("flow: kppa must be positive, got %d", kppa)
	}

	tasks := make([]work.Task, len(eosVRatios))
	for i, vratio := range eosVRatios {
		vratio := vratio
		tasks[i] = work.TaskFunc{
			TaskName: fmt.Sprintf("v_%g", vratio),
			Fn: func(ctx context.Context, dir string) (work.Results, error) {
				etotal, volume, err := f.Calc.Run(ctx, dir, p, vratio, kppa)
				if err != nil {
					return nil, err
				}
				return work.Results{"etotal": etotal, "volume": volume}, nil
			},
		}
	}

	condense := func(perTask []work.Results) (work.Results, error) {
		volumes := make([]float64, len(perTask))
		etotals := make([]float64, len(perTask))
		for i, r := range perTask {
			volumes[i] = r["volume"].(float64)
			etotals[i] = r["etotal"].(float64)
		}
		return work.Results{
			"volumes": volumes,
			"etotals": etotals,
			"kppa":    kppa,
		}, nil
	}

	return work.NewTaskWork(workdir, tasks, condense), nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctoher/pseudodojo/internal/config"
	"github.com/ctoher/pseudodojo/internal/dojo"
	"github.com/ctoher/pseudodojo/internal/flow"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge <pseudo-file>...",
	Short: "Run each pseudopotential through the next pending training levels",
	Long: `Challenge reads dojo.yml from the current directory, builds the
training sequence and runs every given pseudopotential through the
levels it is eligible for. Results are merged into the DOJO_REPORT
section of each file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChallenge,
}

func runChallenge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load dojo.yml: %w", err)
	}
	if workRoot != "" {
		cfg.WorkRoot = workRoot
	}
	if len(cfg.Launcher) == 0 {
		return fmt.Errorf("dojo.yml does not set a launcher command")
	}

	conv := &flow.ConvergenceFactory{
		Calc: &flow.ScriptCalculator{Command: cfg.Launcher},
	}
	eosCmd := cfg.EOSLauncher
	if len(eosCmd) == 0 {
		eosCmd = cfg.Launcher
	}
	delta := &flow.DeltaFactory{
		Calc: &flow.ScriptEOSCalculator{Command: eosCmd},
	}

	opts := []dojo.Option{
		dojo.WithLogger(logger),
		dojo.WithWorkRoot(cfg.WorkRoot),
	}
	if cfg.MaxLevel >= 0 {
		opts = append(opts, dojo.WithMaxLevel(cfg.MaxLevel))
	}
	if cfg.LedgerPath != "" {
		ledger, err := openLedger(cmd.Context(), cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("failed to open training ledger: %w", err)
		}
		defer ledger.Close()
		opts = append(opts, dojo.WithLedger(ledger))
	}

	d, err := dojo.New(dojo.DefaultRegistry(conv, delta, logger), opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	// Drain progress on the side so training output appears as it happens.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range d.Progress() {
			fmt.Println(dojo.FormatProgress(ev))
		}
	}()

	var failed int
	for _, path := range args {
		fmt.Println(dojo.FormatChallengeHeader(path))
		if _, err := d.ChallengePath(cmd.Context(), path, cfg.RunMode); err != nil {
			logger.Error("challenge failed",
				zap.String("pseudo", path),
				zap.Error(err))
			failed++
		}
	}

	d.Close()
	<-done

	if failed > 0 {
		return fmt.Errorf("%d of %d pseudopotentials failed training", failed, len(args))
	}
	return nil
}

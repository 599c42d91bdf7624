package cmd

import (
	"fmt"
	"math/rand"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"gridd.sh/internal/simulation"
)

func newMonteCarloCmd() *cobra.Command {
	var (
		demandMultiplier float64
		renewablePercent float64
		storageGW        float64
		preset           string
		iterations       int
		seed             int64
	)

	cmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "Run a Monte Carlo blackout risk analysis",
		Long:  `Sample perturbed scenario outcomes and report aggregate tail risk: P95 blackout risk, worst-case reserve, peak demand, and average price.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rng *rand.Rand
			if seed != 0 {
				rng = rand.New(rand.NewSource(seed))
			}

			cfg := simulation.Config{
				DemandMultiplier:  demandMultiplier,
				RenewablePercent:  renewablePercent,
				StorageCapacityGW: storageGW,
				Preset:            simulation.PresetByName(preset),
			}

			bar := progressbar.NewOptions(100,
				progressbar.OptionSetDescription("sampling"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			_, risk, err := simulation.NewSampler(rng).SampleRisk(
				cmd.Context(), cfg, iterations,
				func(percent int) { bar.Set(percent) },
			)
			if err != nil {
				return err
			}

			fmt.Printf("\n%s %s (%d iterations, %.0f%% confidence)\n\n",
				bold("Risk analysis:"), cfg.Preset.Name, risk.Iterations, risk.ConfidenceLevel)

			p95 := fmt.Sprintf("%.2f%%", risk.P95BlackoutRisk)
			if risk.P95BlackoutRisk > 5 {
				p95 = red(p95)
			} else if risk.P95BlackoutRisk > 0 {
				p95 = yellow(p95)
			} else {
				p95 = green(p95)
			}

			fmt.Printf("  P95 blackout risk:   %s\n", p95)
			fmt.Printf("  Avg blackout risk:   %.2f%%\n", risk.AvgBlackoutRisk)
			fmt.Printf("  Max peak demand:     %.1f GW\n", risk.MaxPeakDemandGW)
			fmt.Printf("  Worst reserve:       %.1f GW\n", risk.MinReserveWorst)
			fmt.Printf("  Avg price:           %s\n", cyan(fmt.Sprintf("$%.2f/MWh", risk.AvgPrice)))

			return nil
		},
	}

	cmd.Flags().Float64Var(&demandMultiplier, "demand", 1.0, "demand multiplier (0.5-1.5)")
	cmd.Flags().Float64Var(&renewablePercent, "renewables", 40, "renewable share percent (0-100)")
	cmd.Flags().Float64Var(&storageGW, "storage", 15, "storage capacity in GW")
	cmd.Flags().StringVar(&preset, "preset", "baseline", "scenario preset")
	cmd.Flags().IntVar(&iterations, "iterations", 200, "number of Monte Carlo trials")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed for reproducible runs (0 = random)")

	return cmd
}

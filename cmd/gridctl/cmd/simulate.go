package cmd

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"gridd.sh/internal/simulation"
)

func newSimulateCmd() *cobra.Command {
	var (
		demandMultiplier float64
		renewablePercent float64
		storageGW        float64
		tempOffset       float64
		preset           string
		horizon          int
		seed             int64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a grid scenario simulation",
		Long:  `Compute an hourly time series of demand, generation mix, stress, price, and carbon intensity for a scenario.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rng *rand.Rand
			if seed != 0 {
				rng = rand.New(rand.NewSource(seed))
			}

			cfg := simulation.Config{
				DemandMultiplier:   demandMultiplier,
				RenewablePercent:   renewablePercent,
				StorageCapacityGW:  storageGW,
				TemperatureOffsetC: tempOffset,
				Preset:             simulation.PresetByName(preset),
			}

			points, err := simulation.NewEngine(rng).Run(cfg, horizon)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s (risk: %s)\n\n", bold("Scenario:"), cfg.Preset.Name, riskColor(string(cfg.Preset.Risk)))
			fmt.Printf("%-7s %10s %12s %14s %8s %10s %8s\n",
				"Hour", "Demand", "Renewable", "Conventional", "Stress", "Price", "Carbon")

			for _, p := range points {
				p = p.Rounded()
				stress := fmt.Sprintf("%.0f%%", p.GridStressPercent)
				if p.GridStressPercent >= 90 {
					stress = red(stress)
				} else if p.GridStressPercent >= 75 {
					stress = yellow(stress)
				}
				fmt.Printf("%-7s %8.1fGW %10.1fGW %12.1fGW %8s %8.1f$ %8.0f\n",
					p.Label, p.DemandGW, p.RenewableGW, p.ConventionalGW,
					stress, p.PriceUSDPerMWh, p.CarbonIntensity)
			}

			return nil
		},
	}

	cmd.Flags().Float64Var(&demandMultiplier, "demand", 1.0, "demand multiplier (0.5-1.5)")
	cmd.Flags().Float64Var(&renewablePercent, "renewables", 40, "renewable share percent (0-100)")
	cmd.Flags().Float64Var(&storageGW, "storage", 15, "storage capacity in GW")
	cmd.Flags().Float64Var(&tempOffset, "temp-offset", 0, "temperature offset in C")
	cmd.Flags().StringVar(&preset, "preset", "baseline", "scenario preset")
	cmd.Flags().IntVar(&horizon, "horizon", simulation.DefaultHorizon, "hours to simulate")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed for reproducible runs (0 = random)")

	return cmd
}

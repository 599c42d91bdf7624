package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gridd.sh/internal/simulation"
)

func newPresetsCmd() *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List scenario presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := simulation.Presets()
			if fromFile != "" {
				loaded, err := simulation.LoadPresets(fromFile)
				if err != nil {
					return err
				}
				presets = loaded
			}

			fmt.Printf("%-16s %-8s %-10s %-10s %s\n", "Name", "Demand", "Renewable", "Risk", "Description")
			for _, p := range presets {
				fmt.Printf("%-16s %-8.2f %-10.2f %-19s %s\n",
					bold(p.Name), p.DemandModifier, p.RenewableModifier,
					riskColor(string(p.Risk)), p.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "file", "", "merge presets from a YAML file")
	return cmd
}

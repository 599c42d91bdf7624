package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show status of a running gridd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			base := viper.GetString("server")
			client := &http.Client{Timeout: 5 * time.Second}

			resp, err := client.Get(base + "/health")
			if err != nil {
				fmt.Printf("%s daemon unreachable at %s: %v\n", red("✗"), base, err)
				return nil
			}
			defer resp.Body.Close()

			var health healthResponse
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("failed to decode health response: %w", err)
			}

			mark := green("✓")
			if health.Status != "healthy" {
				mark = red("✗")
			}
			fmt.Printf("%s %s %s (version %s)\n", mark, bold(health.Service), health.Status, health.Version)
			for check, state := range health.Checks {
				cm := green("✓")
				if state != "healthy" {
					cm = yellow("!")
				}
				fmt.Printf("  %s %s: %s\n", cm, check, state)
			}
			return nil
		},
	}
}

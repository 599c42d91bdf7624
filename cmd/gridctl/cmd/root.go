package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverURL string
	noColor   bool

	// Color functions
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gridctl",
	Short: "gridctl - Operator CLI for the gridd monitoring daemon",
	Long: `gridctl runs grid scenario simulations and Monte Carlo risk
analysis locally, and queries a running gridd daemon.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "gridd daemon URL")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(
		newSimulateCmd(),
		newMonteCarloCmd(),
		newPresetsCmd(),
		newStatusCmd(),
	)
}

func riskColor(risk string) string {
	switch risk {
	case "low":
		return green(risk)
	case "medium":
		return yellow(risk)
	case "high", "critical":
		return red(risk)
	default:
		return risk
	}
}

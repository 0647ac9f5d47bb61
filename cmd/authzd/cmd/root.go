package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "authzd",
	Short: "Multi-tenant authorization decision service",
	Long: `authzd answers authorization questions for multiple organizations,
combining stored role assignments with an external policy engine behind
a two-tier decision cache.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Local development convenience; absence of a .env file is fine.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (optional)")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

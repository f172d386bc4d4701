package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "keystep",
	Short: "Keystep is an MFA hardening service",
	Long: `Keystep adds a second authentication factor in front of an existing
identity layer: TOTP enrollment and verification, single-use recovery codes
and trusted-device exemptions.
Complete documentation is available at https://github.com/mwalcott/keystep`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; the environment itself may carry config.
		_ = godotenv.Load()
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

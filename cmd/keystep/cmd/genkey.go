package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwalcott/keystep/internal/util"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a random encryption key",
	Long: `Generates a random 32-byte key, hex encoded, suitable for
KEYSTEP_ENCRYPTION_KEY. Store it in your secret manager; losing it makes
every enrolled TOTP secret unreadable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := util.RandomBytes(util.AESKeySize)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Println(util.HexEncode(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
}

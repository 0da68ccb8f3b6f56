package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailkite/mailkite/internal/secrets"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new encryption key",
	Long: `Generate a random 256-bit key for sealing sender credentials.

Set the generated value as crypto.encryption_key in the configuration
file or as the MAILKITE_ENCRYPTION_KEY environment variable. Changing
the key makes previously stored credentials unreadable.`,
	RunE: runKeygen,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	key, err := secrets.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	fmt.Println(key)
	return nil
}

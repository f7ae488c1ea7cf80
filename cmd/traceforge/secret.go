package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the cassette signing secret",
	Long: `Generate the secret that signs cassettes.

Cassettes are signed with HMAC-SHA-256 under a deployment secret so
replayed responses are tamper-evident. Every environment that records
or replays the same cassettes must share one secret.

Subcommands:
  generate - Generate a new signing secret

Examples:
  # Generate a new secret
  traceforge secret generate`,
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new signing secret",
	Long: `Generate a 32-byte random secret, hex encoded.

The secret is printed once and never stored. Put it in the
environment or the config file of every deployment sharing the
cassette store.`,
	RunE: generateSecret,
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretGenerateCmd)
}

func generateSecret(cmd *cobra.Command, args []string) error {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(raw)

	fmt.Println(secret)
	fmt.Println()
	fmt.Println("⚠️  Warning: store the secret securely and never commit it to version control")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Printf("  export TRACEFORGE_VCR_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("Configuration snippet:")
	fmt.Println("vcr:")
	fmt.Printf("  signature_secret: \"%s\"\n", secret)
	return nil
}

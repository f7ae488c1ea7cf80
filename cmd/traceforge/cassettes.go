package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"traceforge-hq/traceforge/pkg/cli"
	"traceforge-hq/traceforge/pkg/config"
	"traceforge-hq/traceforge/pkg/vcr"
)

var cassettesFlags struct {
	provider string
	format   string
}

var cassettesCmd = &cobra.Command{
	Use:   "cassettes",
	Short: "Inspect recorded cassettes",
	Long: `Inspect the cassette store the VCR engine records into.

Cassettes live under the configured cassettes directory, one
subdirectory per provider, one JSON file per request fingerprint.

Subcommands:
  list    - Count cassettes per provider
  verify  - Check every cassette's signature and structure

Examples:
  # Count cassettes per provider
  traceforge cassettes list

  # Verify signatures with the configured secret
  traceforge cassettes verify

  # Verify only anthropic cassettes
  traceforge cassettes verify --provider anthropic`,
}

var cassettesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Count cassettes per provider",
	RunE:  listCassettes,
}

var cassettesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify cassette integrity",
	Long: `Parse every cassette and verify its HMAC signature against the
configured signing secret.

Unsigned cassettes are reported but accepted: the store tolerates
records written before a secret was configured. A signature that does
not match is tamper evidence and makes the command exit non-zero.`,
	RunE: verifyCassettes,
}

func init() {
	rootCmd.AddCommand(cassettesCmd)
	cassettesCmd.AddCommand(cassettesListCmd, cassettesVerifyCmd)

	cassettesListCmd.Flags().StringVar(&cassettesFlags.format, "format", "text", "output format: text, json")
	cassettesVerifyCmd.Flags().StringVar(&cassettesFlags.provider, "provider", "", "verify a single provider's cassettes")
}

func openCassetteStore(cfg *config.Config) *vcr.Store {
	return vcr.NewStore(&vcr.StoreConfig{
		Root:   cfg.VCR.CassettesDir,
		Secret: cfg.VCR.SignatureSecret,
	})
}

func listCassettes(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store := openCassetteStore(cfg)

	stats, err := store.Stats()
	if err != nil {
		return cli.NewCommandError("cassettes list", err)
	}

	format, err := cli.ParseOutputFormat(cassettesFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, stats)
	}

	if len(stats) == 0 {
		fmt.Printf("No cassettes under %s\n", store.Root())
		return nil
	}

	total := 0
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		total += s.Count
		rows = append(rows, []string{s.Provider, strconv.Itoa(s.Count)})
	}
	if err := cli.WriteTable(os.Stdout, []string{"PROVIDER", "CASSETTES"}, rows); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d cassettes under %s\n", total, store.Root())
	return nil
}

func verifyCassettes(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store := openCassetteStore(cfg)

	if cfg.VCR.SignatureSecret == "" {
		fmt.Println("⚠ No signature secret configured; only structure is checked")
		fmt.Println()
	}

	entries, err := os.ReadDir(store.Root())
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("No cassettes under %s\n", store.Root())
		return nil
	}
	if err != nil {
		return cli.NewCommandError("cassettes verify", err)
	}

	var checked, unsigned, tampered, invalid int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		provider := entry.Name()
		if cassettesFlags.provider != "" && provider != cassettesFlags.provider {
			continue
		}

		files, err := os.ReadDir(filepath.Join(store.Root(), provider))
		if err != nil {
			return cli.NewCommandError("cassettes verify", err)
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			checked++
			fingerprint := strings.TrimSuffix(file.Name(), ".json")

			c, err := store.Find(provider, fingerprint)
			switch {
			case vcr.IsTamper(err):
				tampered++
				fmt.Printf("✗ %s/%s: signature mismatch (tampered)\n", provider, fingerprint)
			case err != nil:
				invalid++
				fmt.Printf("✗ %s/%s: %v\n", provider, fingerprint, err)
			case c != nil && c.Signature == "":
				unsigned++
			}
		}
	}

	fmt.Println()
	fmt.Printf("Checked:  %d\n", checked)
	fmt.Printf("Valid:    %d\n", checked-tampered-invalid)
	if unsigned > 0 {
		fmt.Printf("Unsigned: %d\n", unsigned)
	}
	if tampered > 0 {
		fmt.Printf("Tampered: %d\n", tampered)
	}
	if invalid > 0 {
		fmt.Printf("Invalid:  %d\n", invalid)
	}

	if tampered > 0 || invalid > 0 {
		return fmt.Errorf("%d of %d cassettes failed verification", tampered+invalid, checked)
	}
	fmt.Println("\n✓ All cassettes verified")
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"traceforge-hq/traceforge/pkg/cli"
)

var testsFlags struct {
	format string
}

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Inspect stored test cases",
	Long: `List the declarative test cases persisted alongside traces.

TraceForge stores test cases but never runs them; assertion
evaluation belongs to the external test runner.

Examples:
  # List stored test cases
  traceforge tests list

  # Machine-readable listing
  traceforge tests list --format json`,
}

var testsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List test cases",
	RunE:  listTests,
}

func init() {
	rootCmd.AddCommand(testsCmd)
	testsCmd.AddCommand(testsListCmd)

	testsListCmd.Flags().StringVar(&testsFlags.format, "format", "text", "output format: text, json")
}

func listTests(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("tests list", err)
	}
	defer store.Close()

	tests, err := store.ListTests(context.Background())
	if err != nil {
		return cli.NewCommandError("tests list", err)
	}

	format, err := cli.ParseOutputFormat(testsFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, tests)
	}

	if len(tests) == 0 {
		fmt.Println("No test cases found.")
		return nil
	}

	rows := make([][]string, 0, len(tests))
	for _, tc := range tests {
		rows = append(rows, []string{
			tc.ID,
			tc.Name,
			strings.Join(tc.Tags, ","),
			strconv.Itoa(len(tc.PolicyRefs)),
			tc.UpdatedAt.Format(time.RFC3339),
		})
	}
	if err := cli.WriteTable(os.Stdout, []string{"ID", "NAME", "TAGS", "POLICIES", "UPDATED"}, rows); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d test cases\n", len(tests))
	return nil
}

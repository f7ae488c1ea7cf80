package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"traceforge-hq/traceforge/pkg/cli"
	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/trace/export"
)

var tracesFlags struct {
	limit     int
	offset    int
	model     string
	status    string
	timeRange string
	sortBy    string
	sortOrder string
	format    string
	output    string
}

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Inspect captured traces",
	Long: `Query and export the traces the gateway has captured.

Traces are read from the storage backend named in the configuration,
so the same config file the gateway runs with points these commands at
the right data.

Subcommands:
  list    - List traces with filters and pagination
  show    - Print one trace by id
  search  - Full-text search (sqlite backend only)
  export  - Write traces to a JSON or CSV file

Examples:
  # Most recent traces
  traceforge traces list

  # Failed gpt-4 calls from a time window
  traceforge traces list --model gpt-4 --status error \
    --time-range "2026-08-01T00:00:00Z/2026-08-26T00:00:00Z"

  # Full-text search over requests and responses
  traceforge traces search "rate limit"

  # Export everything to CSV
  traceforge traces export --format csv --output traces.csv`,
}

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List traces",
	Long: `List captured traces, newest first by default.

Time Range Format:
  RFC3339 interval: "start/end"
  Example: "2026-08-25T00:00:00Z/2026-08-26T00:00:00Z"`,
	RunE: listTraces,
}

var tracesShowCmd = &cobra.Command{
	Use:   "show <trace-id>",
	Short: "Print one trace",
	Args:  cobra.ExactArgs(1),
	RunE:  showTrace,
}

var tracesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over traces",
	Long: `Search endpoint, request messages, response content, and model
across all captured traces, ranked by relevance.

Search needs the full-text index, which only the sqlite backend
maintains. The file backend reports search as unsupported.`,
	Args: cobra.ExactArgs(1),
	RunE: searchTraces,
}

var tracesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export traces to a file",
	Long: `Export traces matching the filters to JSON or CSV.

Examples:
  # Everything, pretty JSON to stdout
  traceforge traces export

  # Errors only, CSV to a file
  traceforge traces export --status error --format csv --output errors.csv`,
	RunE: exportTraces,
}

func init() {
	rootCmd.AddCommand(tracesCmd)
	tracesCmd.AddCommand(tracesListCmd, tracesShowCmd, tracesSearchCmd, tracesExportCmd)

	for _, cmd := range []*cobra.Command{tracesListCmd, tracesSearchCmd} {
		cmd.Flags().IntVar(&tracesFlags.limit, "limit", 100, "max results")
		cmd.Flags().IntVar(&tracesFlags.offset, "offset", 0, "pagination offset")
	}
	for _, cmd := range []*cobra.Command{tracesListCmd, tracesSearchCmd, tracesExportCmd} {
		cmd.Flags().StringVar(&tracesFlags.model, "model", "", "filter by model")
		cmd.Flags().StringVar(&tracesFlags.status, "status", "", "filter by status (success, error)")
		cmd.Flags().StringVar(&tracesFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	}
	tracesExportCmd.Flags().IntVar(&tracesFlags.limit, "limit", 0, "max traces to export (0 = all)")
	tracesListCmd.Flags().StringVar(&tracesFlags.sortBy, "sort", "timestamp", "sort column: timestamp, duration, model")
	tracesListCmd.Flags().StringVar(&tracesFlags.sortOrder, "order", "desc", "sort order: asc, desc")
	tracesListCmd.Flags().StringVar(&tracesFlags.format, "format", "text", "output format: text, json")
	tracesSearchCmd.Flags().StringVar(&tracesFlags.format, "format", "text", "output format: text, json")
	tracesExportCmd.Flags().StringVar(&tracesFlags.format, "format", "json", "export format: json, csv")
	tracesExportCmd.Flags().StringVarP(&tracesFlags.output, "output", "o", "", "output file (default: stdout)")
}

// tracesListOptions folds the shared flags into storage list options.
func tracesListOptions() (*trace.ListOptions, error) {
	opts := &trace.ListOptions{
		Limit:     tracesFlags.limit,
		Offset:    tracesFlags.offset,
		SortBy:    tracesFlags.sortBy,
		SortOrder: tracesFlags.sortOrder,
		Filter: trace.ListFilter{
			Model:  tracesFlags.model,
			Status: tracesFlags.status,
		},
	}

	if tracesFlags.timeRange != "" {
		parts := strings.Split(tracesFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range format (expected: start/end)")
		}
		from, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		to, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		opts.Filter.DateFrom = &from
		opts.Filter.DateTo = &to
	}

	return opts.WithDefaults(), nil
}

func listTraces(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("traces list", err)
	}
	defer store.Close()

	opts, err := tracesListOptions()
	if err != nil {
		return err
	}

	ctx := context.Background()
	traces, err := store.ListTraces(ctx, opts)
	if err != nil {
		return cli.NewCommandError("traces list", err)
	}
	total, err := store.CountTraces(ctx)
	if err != nil {
		return cli.NewCommandError("traces list", err)
	}

	format, err := cli.ParseOutputFormat(tracesFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, map[string]any{
			"total":  total,
			"count":  len(traces),
			"traces": traces,
		})
	}

	fmt.Printf("Showing %d of %d traces\n\n", len(traces), total)
	return printTraceTable(traces)
}

func showTrace(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("traces show", err)
	}
	defer store.Close()

	t, err := store.GetTrace(context.Background(), args[0])
	if err != nil {
		return cli.NewCommandError("traces show", err)
	}
	return (&cli.JSONFormatter{Indent: true}).FormatTo(os.Stdout, t)
}

func searchTraces(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("traces search", err)
	}
	defer store.Close()

	searcher, ok := store.(trace.Searcher)
	if !ok {
		return fmt.Errorf("the %s backend has no full-text index; search needs the sqlite backend", cfg.Storage.Backend)
	}

	opts, err := tracesListOptions()
	if err != nil {
		return err
	}

	ctx := context.Background()
	traces, err := searcher.SearchTraces(ctx, args[0], opts)
	if err != nil {
		return cli.NewCommandError("traces search", err)
	}
	total, err := searcher.SearchCount(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("traces search", err)
	}

	format, err := cli.ParseOutputFormat(tracesFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, map[string]any{
			"query":  args[0],
			"total":  total,
			"count":  len(traces),
			"traces": traces,
		})
	}

	fmt.Printf("%d matches for %q (showing %d)\n\n", total, args[0], len(traces))
	return printTraceTable(traces)
}

// exportPageSize is how many traces one store read fetches during an
// export.
const exportPageSize = 500

// streamExporter is the batch-friendly side both exporters implement.
type streamExporter interface {
	ExportStream(ctx context.Context, traces <-chan *trace.Trace, w io.Writer) error
}

func exportTraces(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("traces export", err)
	}
	defer store.Close()

	opts, err := tracesListOptions()
	if err != nil {
		return err
	}

	out := os.Stdout
	if tracesFlags.output != "" {
		out, err = os.Create(tracesFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
	}

	var exporter streamExporter
	switch tracesFlags.format {
	case "json":
		exporter = export.NewJSONExporter(true)
	case "csv":
		exporter = export.NewCSVExporter(true)
	default:
		return fmt.Errorf("unknown export format %q (valid: json, csv)", tracesFlags.format)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Progress goes to stderr, so it never corrupts a piped export.
	var progress cli.ProgressReporter
	if total, err := store.CountTraces(ctx); err == nil && total > 0 {
		if tracesFlags.limit > 0 && int64(tracesFlags.limit) < total {
			total = int64(tracesFlags.limit)
		}
		progress = cli.NewProgressReporter(nil)
		progress.Start(total)
	}

	// Feed the exporter page by page so an export never loads the whole
	// store into memory.
	ch := make(chan *trace.Trace, exportPageSize)
	var exported int64
	fetchErr := make(chan error, 1)
	go func() {
		defer close(ch)
		page := *opts
		page.Limit = exportPageSize
		page.Offset = 0
		for {
			if tracesFlags.limit > 0 {
				left := tracesFlags.limit - int(exported)
				if left <= 0 {
					fetchErr <- nil
					return
				}
				if left < page.Limit {
					page.Limit = left
				}
			}
			traces, err := store.ListTraces(ctx, &page)
			if err != nil {
				fetchErr <- err
				return
			}
			for _, t := range traces {
				select {
				case ch <- t:
				case <-ctx.Done():
					fetchErr <- ctx.Err()
					return
				}
				exported++
				if progress != nil {
					progress.Update(exported)
				}
			}
			if len(traces) < page.Limit {
				fetchErr <- nil
				return
			}
			page.Offset += len(traces)
		}
	}()

	if err := exporter.ExportStream(ctx, ch, out); err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return cli.NewCommandError("traces export", err)
	}
	if err := <-fetchErr; err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return cli.NewCommandError("traces export", err)
	}
	if progress != nil {
		progress.Finish()
	}

	if tracesFlags.output != "" {
		fmt.Printf("✓ Exported %d traces to %s\n", exported, tracesFlags.output)
	}
	return nil
}

func printTraceTable(traces []*trace.Trace) error {
	if len(traces) == 0 {
		fmt.Println("No traces found.")
		return nil
	}

	rows := make([][]string, 0, len(traces))
	for _, t := range traces {
		tokens := "-"
		if t.Metadata.TokensUsed != nil {
			tokens = strconv.Itoa(*t.Metadata.TokensUsed)
		}
		rows = append(rows, []string{
			t.ID,
			t.Timestamp.Format(time.RFC3339),
			t.Metadata.Model,
			t.Endpoint,
			t.Metadata.Status,
			strconv.FormatInt(t.Metadata.DurationMS, 10) + "ms",
			tokens,
		})
	}
	return cli.WriteTable(os.Stdout, []string{"ID", "TIMESTAMP", "MODEL", "ENDPOINT", "STATUS", "DURATION", "TOKENS"}, rows)
}

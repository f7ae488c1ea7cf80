/*
Package cli provides command-line interface utilities for TraceForge.

The cli package includes output formatters, progress reporters, and common
helpers used by the traceforge command.

Output Formatting:

Command results can be rendered as text or JSON:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

Tabular listings use WriteTable, which aligns columns:

	cli.WriteTable(os.Stdout,
		[]string{"ID", "STATUS"},
		[][]string{{"tr-1", "success"}})

Progress Reporting:

For long-running operations such as exports, use the progress reporter.
It writes to stderr so exported data on stdout stays pipeable:

	progress := cli.NewProgressReporter(nil)
	progress.Start(total)
	for i := int64(0); i < total; i++ {
		// Do work
		progress.Update(i + 1)
	}
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli

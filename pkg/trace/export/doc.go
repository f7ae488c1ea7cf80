// Package export provides trace exporters for JSON and CSV.
//
// The JSON exporter preserves full trace fidelity, including the raw
// request and response documents, and is the format the import tooling
// reads back. The CSV exporter flattens each trace to one row of scalar
// columns for spreadsheets and ad-hoc analysis; nested documents are
// embedded as JSON strings.
//
// Both exporters also offer a streaming variant that drains a channel,
// so large result sets never have to be held in memory.
//
//	exporter := export.NewJSONExporter(true)
//	if err := exporter.Export(ctx, traces, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package export

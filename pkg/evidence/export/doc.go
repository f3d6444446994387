// Package export writes audit records as JSON or CSV.
//
// The JSON exporter writes a single object for one record and an array
// otherwise. The CSV exporter flattens each record to one row; the step
// trace and metrics are embedded as JSON strings.
//
//	exp := export.NewCSVExporter(true)
//	err := exp.Export(ctx, records, os.Stdout)
package export

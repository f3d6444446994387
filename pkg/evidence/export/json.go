package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/overwatch/pkg/evidence"
)

// JSONExporter exports audit records to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes records to w. A single record is written as an object,
// anything else as an array.
func (e *JSONExporter) Export(ctx context.Context, records []*evidence.AuditRecord, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	if len(records) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}

	var v any = records
	if len(records) == 1 {
		v = records[0]
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return evidence.NewExportError("json", len(records), err)
	}

	if _, err := w.Write(data); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	return nil
}

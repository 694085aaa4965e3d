package activity

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
)

// ExportFormat selects the serialization used by Export.
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// Export serializes records in the given format. Unknown formats are a
// validation error.
func Export(records []*Activity, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatJSON:
		return exportJSON(records)
	case ExportFormatCSV:
		return exportCSV(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	default:
		return nil, fmt.Errorf("unknown export format: %s", format)
	}
}

func exportJSON(records []*Activity) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

func exportNDJSON(records []*Activity) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(records []*Activity) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID",
		"Timestamp",
		"UserID",
		"SessionID",
		"Action",
		"Resource",
		"Outcome",
		"IPAddress",
		"UserAgent",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.ID,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.UserID,
			r.SessionID,
			string(r.Action),
			r.Resource,
			string(r.Outcome),
			r.IPAddress,
			r.UserAgent,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

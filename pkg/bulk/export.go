package bulk

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/meridianhq/aegis/pkg/directory"
)

// ExportFormat selects the serialization for an export operation.
type ExportFormat string

const (
	ExportJSON    ExportFormat = "json"
	ExportNDJSON  ExportFormat = "ndjson"
	ExportCSV     ExportFormat = "csv"
	defaultExport              = ExportJSON
)

func (f ExportFormat) valid() bool {
	switch f {
	case ExportJSON, ExportNDJSON, ExportCSV:
		return true
	}
	return false
}

// encodeUsers serializes the exported user records.
func encodeUsers(users []*directory.User, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportJSON:
		return json.MarshalIndent(users, "", "  ")
	case ExportNDJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, u := range users {
			if err := enc.Encode(u); err != nil {
				return nil, fmt.Errorf("encode user %s: %w", u.ID, err)
			}
		}
		return buf.Bytes(), nil
	case ExportCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		header := []string{"id", "email", "full_name", "role", "status", "tier", "login_count"}
		if err := w.Write(header); err != nil {
			return nil, err
		}
		for _, u := range users {
			row := []string{
				u.ID,
				u.Email,
				u.FullName,
				string(u.Role),
				string(u.Status),
				string(u.Subscription.Tier),
				strconv.Itoa(u.LoginCount),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

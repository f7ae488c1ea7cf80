package trace

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Upgrade parses a stored trace record and lifts it to the current
// schema version. Missing or malformed fields are repaired best-effort
// and reported as warnings; only a hard JSON parse failure returns an
// error.
func Upgrade(raw []byte) (*Trace, []string, error) {
	var t Trace
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, nil, fmt.Errorf("parse trace: %w", err)
	}

	var warnings []string

	if t.ID == "" {
		t.ID = uuid.NewString()
		warnings = append(warnings, "missing id, minted "+t.ID)
	}
	switch t.SchemaVersion {
	case SchemaVersion:
	case "":
		warnings = append(warnings, "missing schema_version, assuming 1.0")
		t.SchemaVersion = SchemaVersion
	default:
		warnings = append(warnings, fmt.Sprintf("upgraded schema_version %s to %s", t.SchemaVersion, SchemaVersion))
		t.SchemaVersion = SchemaVersion
	}

	if t.Metadata.Status == "" {
		if t.Metadata.Error != "" {
			t.Metadata.Status = StatusError
		} else {
			t.Metadata.Status = StatusSuccess
		}
		warnings = append(warnings, fmt.Sprintf("missing metadata.status, derived %q", t.Metadata.Status))
	}

	// Older records kept partial response bodies on failed calls.
	if t.Metadata.Status == StatusError && !isNullRaw(t.Response) {
		t.Response = nil
		warnings = append(warnings, "cleared response body on error record")
	}
	if isNullRaw(t.Response) {
		t.Response = nil
	}

	if t.StepIndex != nil && *t.StepIndex < 0 {
		t.StepIndex = nil
		warnings = append(warnings, "dropped negative step_index")
	}
	if t.Timestamp.IsZero() {
		warnings = append(warnings, "missing timestamp")
	}

	return &t, warnings, nil
}

func isNullRaw(r json.RawMessage) bool {
	return len(r) == 0 || bytes.Equal(bytes.TrimSpace(r), []byte("null"))
}

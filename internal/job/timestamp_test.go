package job

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestamp_Unmarshal(t *testing.T) {
	want := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
	}{
		{"rfc3339 utc", `"2026-05-04T10:30:00Z"`},
		{"rfc3339 offset", `"2026-05-04T12:30:00+02:00"`},
		{"naive", `"2026-05-04T10:30:00"`},
		{"naive fractional", `"2026-05-04T10:30:00.000000"`},
		{"space separated", `"2026-05-04 10:30:00"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.input), &ts); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if !ts.Equal(want) {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, ts.Time, want)
			}
		})
	}
}

func TestTimestamp_NullAndInvalid(t *testing.T) {
	var holder struct {
		At *Timestamp `json:"at"`
	}
	if err := json.Unmarshal([]byte(`{"at":null}`), &holder); err != nil {
		t.Fatalf("null error = %v", err)
	}
	if holder.At != nil {
		t.Errorf("null should leave pointer nil, got %v", holder.At)
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
	if err := json.Unmarshal([]byte(`12345`), &ts); err == nil {
		t.Error("expected error for numeric timestamp")
	}
}

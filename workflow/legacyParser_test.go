package workflow

import (
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	input := `Household Number,Head Of Household Name,Monthly Income
HH-001,Juan Dela Cruz,15000
HH-002,Maria Santos,8000

HH-003,Pedro Reyes`
	records, err := NewLegacyParser().ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0]["household_number"] != "HH-001" {
		t.Errorf("header not normalized: %v", records[0])
	}
	if records[0]["head_of_household_name"] != "Juan Dela Cruz" {
		t.Errorf("record 0 = %v", records[0])
	}
	// Short row pads to the header width.
	if records[2]["monthly_income"] != "" {
		t.Errorf("short row not padded: %v", records[2])
	}
}

func TestParseJSONArray(t *testing.T) {
	input := `[{"household_number":"HH-001","monthly_income":15000},{"household_number":"HH-002"}]`
	records, err := NewLegacyParser().ParseJSON(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["household_number"] != "HH-001" {
		t.Errorf("record 0 = %v", records[0])
	}
}

func TestParseJSONEnvelope(t *testing.T) {
	input := `{"batch_id":"B-1","records":[{"household_number":"HH-001"}]}`
	records, err := NewLegacyParser().ParseJSON(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0]["household_number"] != "HH-001" {
		t.Errorf("records = %v", records)
	}
}

func TestParseJSONRejectsScalar(t *testing.T) {
	if _, err := NewLegacyParser().ParseJSON(strings.NewReader(`"nope"`)); err == nil {
		t.Fatal("scalar json accepted")
	}
}

func TestParseFileUnsupportedExtension(t *testing.T) {
	if _, err := NewLegacyParser().ParseFile("records.txt"); err == nil {
		t.Fatal("unsupported extension accepted")
	}
}

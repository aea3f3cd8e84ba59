package report

import (
	"errors"
	"strings"
	"testing"
)

func params(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestParseFilter_Valid(t *testing.T) {
	f, err := ParseFilter(params(map[string]string{
		"start_date":  "2025-02-01",
		"end_date":    "2025-02-28",
		"report_type": " anc ",
		"status":      "active",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ReportType != "anc" {
		t.Errorf("expected trimmed report_type, got %q", f.ReportType)
	}
	if f.Status != "active" {
		t.Errorf("expected status to be carried, got %q", f.Status)
	}
	if f.StartDate == nil || f.StartDate.Format("2006-01-02") != "2025-02-01" {
		t.Errorf("unexpected start date %v", f.StartDate)
	}
	if f.EndDate == nil || f.EndDate.Format("2006-01-02") != "2025-02-28" {
		t.Errorf("unexpected end date %v", f.EndDate)
	}
}

func TestParseFilter_OptionalDates(t *testing.T) {
	f, err := ParseFilter(params(map[string]string{"report_type": "all"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.StartDate != nil || f.EndDate != nil {
		t.Error("expected open date range")
	}
	if !f.Range().Open() {
		t.Error("expected Range() to be open")
	}
}

func TestParseFilter_SameDay(t *testing.T) {
	_, err := ParseFilter(params(map[string]string{
		"start_date": "2025-02-10", "end_date": "2025-02-10", "report_type": "daily",
	}))
	if err != nil {
		t.Fatalf("expected start == end to be accepted, got %v", err)
	}
}

func TestParseFilter_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		in     map[string]string
		fields []string
	}{
		{"missing report type", map[string]string{}, []string{"report_type"}},
		{"blank report type", map[string]string{"report_type": "   "}, []string{"report_type"}},
		{"malformed start", map[string]string{"report_type": "x", "start_date": "01/02/2025"}, []string{"start_date"}},
		{"malformed end", map[string]string{"report_type": "x", "end_date": "2025-02-30"}, []string{"end_date"}},
		{"end before start", map[string]string{"report_type": "x", "start_date": "2025-03-01", "end_date": "2025-02-28"}, []string{"end_date"}},
		{"several fields", map[string]string{"start_date": "nope", "end_date": "nope"}, []string{"start_date", "end_date", "report_type"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(params(tt.in))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Fields) != len(tt.fields) {
				t.Errorf("expected %d field errors, got %v", len(tt.fields), verr.Fields)
			}
			for _, f := range tt.fields {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("expected error on %s, got %v", f, verr.Fields)
				}
			}
			if verr.Message != "validation failed" {
				t.Errorf("unexpected message %q", verr.Message)
			}
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	if err := (Filter{ReportType: "x", StartDate: day("2025-01-01"), EndDate: day("2025-01-01")}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := (Filter{StartDate: day("2025-02-01"), EndDate: day("2025-01-01")}).Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 2 {
		t.Errorf("expected report_type and end_date errors, got %v", verr.Fields)
	}
}

func TestValidationError_Message(t *testing.T) {
	verr := &ValidationError{}
	verr.add("start_date", "bad")
	verr.add("end_date", "worse")
	verr.add("end_date", "ignored duplicate")
	msg := verr.Error()
	if !strings.HasPrefix(msg, "validation failed: ") {
		t.Errorf("unexpected message %q", msg)
	}
	if !strings.Contains(msg, "end_date: worse; start_date: bad") {
		t.Errorf("expected sorted field list, got %q", msg)
	}
}

package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mchtrack/mch/internal/domain/patient"
)

// Filter selects the population a report is computed over.
//
// ReportType is a free-form label carried into the response and export file
// name; it does not change which records are selected. Status is accepted
// for compatibility with existing clients and has no filtering effect.
type Filter struct {
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	ReportType string     `json:"report_type"`
	Status     string     `json:"status,omitempty"`
}

// Range returns the registration-date bounds of the filter.
func (f Filter) Range() patient.DateRange {
	return patient.DateRange{Start: f.StartDate, End: f.EndDate}
}

// ValidationError lists the request fields that failed validation, keyed by
// field name.
type ValidationError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// MarshalJSON keeps the field map in HTTP error bodies; echo would otherwise
// render an error value as its Error() string.
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	type payload ValidationError
	return json.Marshal((*payload)(e))
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	e.Message = "validation failed"
	return e
}

// ParseFilter builds a Filter from request parameters looked up through get
// (for example echo.Context.QueryParam) and validates it.
func ParseFilter(get func(name string) string) (Filter, error) {
	verr := &ValidationError{}
	f := Filter{
		ReportType: strings.TrimSpace(get("report_type")),
		Status:     strings.TrimSpace(get("status")),
	}

	var err error
	if f.StartDate, err = parseDate(get("start_date")); err != nil {
		verr.add("start_date", "must be a date in YYYY-MM-DD format")
	}
	if f.EndDate, err = parseDate(get("end_date")); err != nil {
		verr.add("end_date", "must be a date in YYYY-MM-DD format")
	}

	f.check(verr)
	if err := verr.orNil(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// Validate checks a Filter constructed in code, such as by the CLI.
func (f Filter) Validate() error {
	verr := &ValidationError{}
	f.check(verr)
	return verr.orNil()
}

func (f Filter) check(verr *ValidationError) {
	if f.ReportType == "" {
		verr.add("report_type", "is required")
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		verr.add("end_date", "must be a date after or equal to start_date")
	}
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(patient.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s, err)
	}
	return &t, nil
}

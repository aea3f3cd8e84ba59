package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Column is one export column: the row key and its human-readable heading.
type Column struct {
	Key     string
	Heading string
}

// Columns is the fixed export layout. Row.Cells returns values in this order.
var Columns = []Column{
	{"unique_id", "Unique ID"},
	{"full_name", "Full Name"},
	{"age", "Age"},
	{"literacy_status", "Literacy Status"},
	{"phone_number", "Phone Number"},
	{"community", "Community"},
	{"lga", "LGA"},
	{"ward", "Ward"},
	{"health_facility", "Health Facility"},
	{"gravida", "Gravida"},
	{"parity", "Parity"},
	{"date_of_registration", "Date of Registration"},
	{"edd", "EDD"},
	{"anc_visits_count", "ANC Visits"},
	{"anc4_completed", "ANC4 Completed"},
	{"place_of_delivery", "Place of Delivery"},
	{"delivery_outcome", "Delivery Outcome"},
	{"date_of_delivery", "Date of Delivery"},
	{"pnc_completed", "PNC Completed"},
	{"delivery_kits_received", "Delivery Kits Received"},
}

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Report"

// ParseFormat maps a request value to a Format; "" selects CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	verr := &ValidationError{}
	verr.add("format", "must be one of csv, xlsx")
	return "", verr.orNil()
}

func (f Format) contentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ExportRequest selects the population and file format of an export.
type ExportRequest struct {
	Filter Filter
	Format Format
}

// Artifact is a rendered export ready for download.
type Artifact struct {
	FileName    string
	ContentType string
	Body        []byte
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// FileName returns "<report type>_report_<YYYY-MM-DD>.<ext>" for the given
// day.
func FileName(reportType string, f Format, now time.Time) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(reportType), "_"), "_")
	if slug == "" {
		slug = "patients"
	}
	return fmt.Sprintf("%s_report_%s.%s", slug, now.Format("2006-01-02"), f)
}

func headings() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = c.Heading
	}
	return out
}

func renderCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headings()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(Columns))
	for _, r := range rows {
		for i, v := range r.Cells() {
			record[i] = fmt.Sprint(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", r.UniqueID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, h := range headings() {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		cells := r.Cells()
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return nil, fmt.Errorf("write xlsx row %s: %w", r.UniqueID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func render(f Format, rows []Row) ([]byte, error) {
	switch f {
	case FormatCSV, "":
		return renderCSV(rows)
	case FormatXLSX:
		return renderXLSX(rows)
	}
	_, err := ParseFormat(string(f))
	return nil, err
}

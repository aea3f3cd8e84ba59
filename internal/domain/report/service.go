package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mchtrack/mch/internal/domain/patient"
	"github.com/mchtrack/mch/internal/platform/metrics"
)

// Clock supplies the current time for export file names.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Meta describes the request a Report was computed for.
type Meta struct {
	ReportType  string    `json:"report_type"`
	Status      string    `json:"status,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report bundles every view over a single store read.
type Report struct {
	Meta    Meta    `json:"meta"`
	Summary Summary `json:"summary"`
	Charts  Charts  `json:"charts"`
	Rows    []Row   `json:"rows,omitempty"`
}

// Service computes reports from the patient store. It assumes its Filter
// arguments have already passed ParseFilter or Filter.Validate, and returns
// store errors unchanged.
type Service struct {
	store  patient.Store
	clock  Clock
	logger zerolog.Logger
}

// NewService creates a Service. A nil clock means SystemClock.
func NewService(store patient.Store, clock Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = SystemClock
	}
	return &Service{store: store, clock: clock, logger: logger}
}

// PatientCount returns the number of registered patients in the store.
func (s *Service) PatientCount(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// population reads the store once and applies the date-range predicate.
func (s *Service) population(ctx context.Context, view string, f Filter) ([]*patient.Patient, error) {
	start := time.Now()
	records, err := s.store.ListForReport(ctx, f.Range())
	if err != nil {
		metrics.ObserveReport(view, start, 0, err)
		s.logger.Error().Err(err).Str("view", view).Str("report_type", f.ReportType).Msg("load report population")
		return nil, err
	}
	subset := FilterByDateRange(records, f.Range())
	metrics.ObserveReport(view, start, len(subset), nil)

	evt := s.logger.Debug().
		Str("view", view).
		Str("report_type", f.ReportType).
		Int("records", len(subset)).
		Dur("duration", time.Since(start))
	if f.Status != "" {
		evt = evt.Str("status", f.Status).Bool("status_ignored", true)
	}
	evt.Msg("report population loaded")
	return subset, nil
}

// GenerateReport returns the row extract for the filtered population.
func (s *Service) GenerateReport(ctx context.Context, f Filter) ([]Row, error) {
	records, err := s.population(ctx, "data", f)
	if err != nil {
		return nil, err
	}
	return BuildRows(records), nil
}

// GenerateSummary returns the headline counts and rates.
func (s *Service) GenerateSummary(ctx context.Context, f Filter) (*Summary, error) {
	records, err := s.population(ctx, "summary", f)
	if err != nil {
		return nil, err
	}
	sum := Summarize(records)
	return &sum, nil
}

// GenerateCharts returns the eight chart series.
func (s *Service) GenerateCharts(ctx context.Context, f Filter) (*Charts, error) {
	records, err := s.population(ctx, "charts", f)
	if err != nil {
		return nil, err
	}
	ch := BuildCharts(records)
	return &ch, nil
}

// Generate returns the summary and charts, plus the rows when withRows is set.
func (s *Service) Generate(ctx context.Context, f Filter, withRows bool) (*Report, error) {
	records, err := s.population(ctx, "report", f)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Meta: Meta{
			ReportType:  f.ReportType,
			Status:      f.Status,
			StartDate:   patient.DateString(f.StartDate),
			EndDate:     patient.DateString(f.EndDate),
			GeneratedAt: s.clock.Now(),
		},
		Summary: Summarize(records),
		Charts:  BuildCharts(records),
	}
	if withRows {
		r.Rows = BuildRows(records)
	}
	return r, nil
}

// Export renders the row extract in req.Format, CSV when unset, and names
// the file from the report type and the clock.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*Artifact, error) {
	format := req.Format
	if format == "" {
		format = FormatCSV
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}

	records, err := s.population(ctx, "export", req.Filter)
	if err != nil {
		return nil, err
	}
	body, err := render(format, BuildRows(records))
	if err != nil {
		return nil, err
	}

	name := FileName(req.Filter.ReportType, format, s.clock.Now())
	s.logger.Info().
		Str("file", name).
		Int("rows", len(records)).
		Int("bytes", len(body)).
		Msg("report exported")
	return &Artifact{FileName: name, ContentType: format.contentType(), Body: body}, nil
}

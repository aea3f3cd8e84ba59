package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mchtrack/mch/internal/domain/patient"
	"github.com/mchtrack/mch/internal/domain/report"
	"github.com/mchtrack/mch/internal/platform/db"
	"github.com/mchtrack/mch/migrations"
)

type seedPatient struct {
	uniqueID   string
	registered *time.Time
	age        *int
	literacy   *string
	anc4       bool
	pnc        bool
	kits       bool
	outcome    *string
	ancDates   int
}

func sp(s string) *string { return &s }
func ip(i int) *int       { return &i }

func seedLocations(t *testing.T, pool *pgxpool.Pool) (lgaID, wardID, communityID, facilityID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		if err != nil {
			t.Fatalf("seed locations: %v", err)
		}
	}
	must(pool.QueryRow(ctx, `INSERT INTO lgas (name) VALUES ('Ikeja') RETURNING id`).Scan(&lgaID))
	must(pool.QueryRow(ctx, `INSERT INTO wards (lga_id, name) VALUES ($1, 'Ward 3') RETURNING id`, lgaID).Scan(&wardID))
	must(pool.QueryRow(ctx, `INSERT INTO communities (ward_id, name) VALUES ($1, 'Agege') RETURNING id`, wardID).Scan(&communityID))
	must(pool.QueryRow(ctx, `INSERT INTO health_facilities (ward_id, name) VALUES ($1, 'PHC Agege') RETURNING id`, wardID).Scan(&facilityID))
	return
}

func seedPatients(t *testing.T, pool *pgxpool.Pool, patients []seedPatient) {
	t.Helper()
	ctx := context.Background()
	lgaID, wardID, communityID, facilityID := seedLocations(t, pool)
	for _, p := range patients {
		_, err := pool.Exec(ctx, `INSERT INTO patients (
			unique_id, full_name, age, literacy_status,
			lga_id, ward_id, community_id, health_facility_id,
			date_of_registration, anc4_completed, pnc_completed, delivery_kits_received,
			delivery_outcome, anc_visits_count,
			anc_visit_1_date, anc_visit_2_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			CASE WHEN $14 >= 1 THEN $9 END, CASE WHEN $14 >= 2 THEN $9 END)`,
			p.uniqueID, "Patient "+p.uniqueID, p.age, p.literacy,
			lgaID, wardID, communityID, facilityID,
			p.registered, p.anc4, p.pnc, p.kits, p.outcome, p.ancDates,
		)
		if err != nil {
			t.Fatalf("insert %s: %v", p.uniqueID, err)
		}
	}
}

func fixture() []seedPatient {
	return []seedPatient{
		{uniqueID: "P-001", registered: date("2025-01-05"), age: ip(19), anc4: true, ancDates: 2},
		{uniqueID: "P-002", registered: date("2025-02-10"), age: ip(34), literacy: sp("Literate"), anc4: true, pnc: true, kits: true, outcome: sp(patient.OutcomeLiveBirth), ancDates: 1},
		{uniqueID: "P-003", registered: date("2025-02-20"), age: ip(35), outcome: sp(patient.OutcomeStillbirth)},
		{uniqueID: "P-004"},
	}
}

func date(s string) *time.Time {
	t, _ := time.Parse(patient.DateLayout, s)
	return &t
}

func TestPatientStore_ListForReport(t *testing.T) {
	pool := requireDB(t)
	seedPatients(t, pool, fixture())
	store := patient.NewStorePG(pool)
	ctx := context.Background()

	all, err := store.ListForReport(ctx, patient.DateRange{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 patients in an open range, got %d", len(all))
	}
	if all[3].UniqueID != "P-004" {
		t.Errorf("expected unregistered patient last, got %s", all[3].UniqueID)
	}

	feb, err := store.ListForReport(ctx, patient.DateRange{Start: date("2025-02-01"), End: date("2025-02-28")})
	if err != nil {
		t.Fatalf("list february: %v", err)
	}
	if len(feb) != 2 || feb[0].UniqueID != "P-002" || feb[1].UniqueID != "P-003" {
		t.Fatalf("unexpected february population %+v", feb)
	}

	p := feb[0]
	if patient.Str(p.Community) != "Agege" || patient.Str(p.HealthFacility) != "PHC Agege" || patient.Str(p.LGA) != "Ikeja" {
		t.Errorf("expected joined location names, got %+v", p)
	}
	if p.RecordedANCVisits() != 1 || p.ANCVisitDates[0] == nil {
		t.Errorf("expected one recorded ANC visit, got %d", p.RecordedANCVisits())
	}

	n, err := store.Count(ctx)
	if err != nil || n != 4 {
		t.Errorf("expected count 4, got %d (%v)", n, err)
	}
}

func TestReportService_AgainstPostgres(t *testing.T) {
	pool := requireDB(t)
	seedPatients(t, pool, fixture())
	svc := report.NewService(patient.NewStorePG(pool), nil, zerolog.Nop())
	ctx := context.Background()

	f := report.Filter{StartDate: date("2025-02-01"), EndDate: date("2025-02-28"), ReportType: "monthly"}
	sum, err := svc.GenerateSummary(ctx, f)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalPatients != 2 || sum.LiveBirths != 1 || sum.Stillbirths != 1 || sum.ANC4CompletionRate != 50 {
		t.Errorf("unexpected summary %+v", sum)
	}

	r, err := svc.Generate(ctx, report.Filter{ReportType: "all"}, true)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if r.Summary.TotalPatients != 4 || len(r.Rows) != 4 {
		t.Errorf("expected open range to include unregistered patient, got %d/%d", r.Summary.TotalPatients, len(r.Rows))
	}

	a, err := svc.Export(ctx, report.ExportRequest{Filter: f, Format: report.FormatXLSX})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(a.Body) == 0 || a.ContentType == "" {
		t.Errorf("unexpected artifact %+v", a)
	}
}

func TestMigrator_Idempotent(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()
	m := db.NewMigrator(pool, migrations.FS)

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no pending migrations, applied %d", n)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("expected %s applied", s.Name)
		}
	}
}

package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type storePG struct{ pool queryable }

// NewStorePG returns a Store backed by PostgreSQL.
func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

var patientCols = buildPatientCols()

func buildPatientCols() string {
	cols := []string{
		"p.id", "p.unique_id", "p.full_name", "p.age", "p.literacy_status", "p.phone_number",
		"p.community_id", "p.lga_id", "p.ward_id", "p.health_facility_id",
		"c.name", "l.name", "w.name", "f.name",
		"p.gravida", "p.parity", "p.date_of_registration", "p.edd",
	}
	for i := 1; i <= MaxANCVisits; i++ {
		cols = append(cols, fmt.Sprintf("p.anc_visit_%d_date", i), fmt.Sprintf("p.anc_visit_%d_outcome", i))
	}
	for i := 1; i <= MaxPNCVisits; i++ {
		cols = append(cols, fmt.Sprintf("p.pnc_visit_%d_date", i))
	}
	cols = append(cols,
		"p.place_of_delivery", "p.type_of_delivery", "p.delivery_outcome", "p.date_of_delivery",
		"p.anc_visits_count", "p.anc4_completed", "p.pnc_completed", "p.delivery_kits_received",
		"p.health_insurance_status", "p.insurance_type", "p.alert", "p.remarks",
		"p.created_at", "p.updated_at",
	)
	return strings.Join(cols, ", ")
}

const patientJoins = `FROM patients p
	LEFT JOIN communities c ON c.id = p.community_id
	LEFT JOIN lgas l ON l.id = p.lga_id
	LEFT JOIN wards w ON w.id = p.ward_id
	LEFT JOIN health_facilities f ON f.id = p.health_facility_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	dest := []interface{}{
		&p.ID, &p.UniqueID, &p.FullName, &p.Age, &p.Literacy, &p.PhoneNumber,
		&p.CommunityID, &p.LGAID, &p.WardID, &p.HealthFacilityID,
		&p.Community, &p.LGA, &p.Ward, &p.HealthFacility,
		&p.Gravida, &p.Parity, &p.DateOfRegistration, &p.EDD,
	}
	for i := 0; i < MaxANCVisits; i++ {
		dest = append(dest, &p.ANCVisitDates[i], &p.ANCVisitOutcomes[i])
	}
	for i := 0; i < MaxPNCVisits; i++ {
		dest = append(dest, &p.PNCVisitDates[i])
	}
	dest = append(dest,
		&p.PlaceOfDelivery, &p.TypeOfDelivery, &p.DeliveryOutcome, &p.DateOfDelivery,
		&p.ANCVisitsCount, &p.ANC4Completed, &p.PNCCompleted, &p.DeliveryKitsReceived,
		&p.InsuranceStatus, &p.InsuranceType, &p.Alert, &p.Remarks,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *storePG) ListForReport(ctx context.Context, rng DateRange) ([]*Patient, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+patientCols+` `+patientJoins+`
		WHERE ($1::date IS NULL OR p.date_of_registration >= $1::date)
		  AND ($2::date IS NULL OR p.date_of_registration <= $2::date)
		ORDER BY p.date_of_registration NULLS LAST, p.unique_id`,
		rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return items, nil
}

func (s *storePG) Count(ctx context.Context) (int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return total, nil
}

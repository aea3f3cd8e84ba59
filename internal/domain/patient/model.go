package patient

import (
	"time"

	"github.com/google/uuid"
)

// Number of antenatal and postnatal visit slots carried on a patient row.
const (
	MaxANCVisits = 8
	MaxPNCVisits = 3
)

// Delivery outcomes counted by the summary.
const (
	OutcomeLiveBirth  = "Live birth"
	OutcomeStillbirth = "Stillbirth"
)

// Patient maps to the patients table joined with its location and facility
// names. Nullable columns are pointers; use the accessor helpers below to
// read them with their documented defaults.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UniqueID    string    `db:"unique_id" json:"unique_id"`
	FullName    string    `db:"full_name" json:"full_name"`
	Age         *int      `db:"age" json:"age,omitempty"`
	Literacy    *string   `db:"literacy_status" json:"literacy_status,omitempty"`
	PhoneNumber *string   `db:"phone_number" json:"phone_number,omitempty"`

	CommunityID      *uuid.UUID `db:"community_id" json:"community_id,omitempty"`
	LGAID            *uuid.UUID `db:"lga_id" json:"lga_id,omitempty"`
	WardID           *uuid.UUID `db:"ward_id" json:"ward_id,omitempty"`
	HealthFacilityID *uuid.UUID `db:"health_facility_id" json:"health_facility_id,omitempty"`
	Community        *string    `db:"community" json:"community,omitempty"`
	LGA              *string    `db:"lga" json:"lga,omitempty"`
	Ward             *string    `db:"ward" json:"ward,omitempty"`
	HealthFacility   *string    `db:"health_facility" json:"health_facility,omitempty"`

	Gravida            *int       `db:"gravida" json:"gravida,omitempty"`
	Parity             *int       `db:"parity" json:"parity,omitempty"`
	DateOfRegistration *time.Time `db:"date_of_registration" json:"date_of_registration,omitempty"`
	EDD                *time.Time `db:"edd" json:"edd,omitempty"`

	ANCVisitDates    [MaxANCVisits]*time.Time `json:"anc_visit_dates"`
	ANCVisitOutcomes [MaxANCVisits]*string    `json:"anc_visit_outcomes"`
	PNCVisitDates    [MaxPNCVisits]*time.Time `json:"pnc_visit_dates"`

	PlaceOfDelivery *string    `db:"place_of_delivery" json:"place_of_delivery,omitempty"`
	TypeOfDelivery  *string    `db:"type_of_delivery" json:"type_of_delivery,omitempty"`
	DeliveryOutcome *string    `db:"delivery_outcome" json:"delivery_outcome,omitempty"`
	DateOfDelivery  *time.Time `db:"date_of_delivery" json:"date_of_delivery,omitempty"`

	ANCVisitsCount       int  `db:"anc_visits_count" json:"anc_visits_count"`
	ANC4Completed        bool `db:"anc4_completed" json:"anc4_completed"`
	PNCCompleted         bool `db:"pnc_completed" json:"pnc_completed"`
	DeliveryKitsReceived bool `db:"delivery_kits_received" json:"delivery_kits_received"`

	InsuranceStatus *string `db:"health_insurance_status" json:"health_insurance_status,omitempty"`
	InsuranceType   *string `db:"insurance_type" json:"insurance_type,omitempty"`
	Alert           *string `db:"alert" json:"alert,omitempty"`
	Remarks         *string `db:"remarks" json:"remarks,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RecordedANCVisits counts the antenatal visit slots that carry a date.
func (p *Patient) RecordedANCVisits() int {
	n := 0
	for _, d := range p.ANCVisitDates {
		if d != nil {
			n++
		}
	}
	return n
}

// RecordedPNCVisits counts the postnatal visit slots that carry a date.
func (p *Patient) RecordedPNCVisits() int {
	n := 0
	for _, d := range p.PNCVisitDates {
		if d != nil {
			n++
		}
	}
	return n
}

// AgeOrZero returns the recorded age, or 0 when none was captured.
func (p *Patient) AgeOrZero() int {
	return Int(p.Age)
}

// Str dereferences s, returning "" for nil.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Int dereferences i, returning 0 for nil.
func Int(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// DateString formats t as YYYY-MM-DD, returning "" for nil.
func DateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// DateLayout is the calendar-date layout used for registration, EDD and
// delivery dates on the wire.
const DateLayout = "2006-01-02"

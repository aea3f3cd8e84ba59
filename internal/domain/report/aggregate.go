package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/mchtrack/mch/internal/domain/patient"
)

// Row is one patient projected to the export columns. Boolean flags are
// rendered as "Yes"/"No"; missing values are "" or 0.
type Row struct {
	UniqueID             string `json:"unique_id"`
	FullName             string `json:"full_name"`
	Age                  int    `json:"age"`
	LiteracyStatus       string `json:"literacy_status"`
	PhoneNumber          string `json:"phone_number"`
	Community            string `json:"community"`
	LGA                  string `json:"lga"`
	Ward                 string `json:"ward"`
	HealthFacility       string `json:"health_facility"`
	Gravida              int    `json:"gravida"`
	Parity               int    `json:"parity"`
	DateOfRegistration   string `json:"date_of_registration"`
	EDD                  string `json:"edd"`
	ANCVisitsCount       int    `json:"anc_visits_count"`
	ANC4Completed        string `json:"anc4_completed"`
	PlaceOfDelivery      string `json:"place_of_delivery"`
	DeliveryOutcome      string `json:"delivery_outcome"`
	DateOfDelivery       string `json:"date_of_delivery"`
	PNCCompleted         string `json:"pnc_completed"`
	DeliveryKitsReceived string `json:"delivery_kits_received"`
}

// Cells returns the row values in Columns order.
func (r Row) Cells() []interface{} {
	return []interface{}{
		r.UniqueID, r.FullName, r.Age, r.LiteracyStatus, r.PhoneNumber,
		r.Community, r.LGA, r.Ward, r.HealthFacility,
		r.Gravida, r.Parity, r.DateOfRegistration, r.EDD,
		r.ANCVisitsCount, r.ANC4Completed, r.PlaceOfDelivery, r.DeliveryOutcome,
		r.DateOfDelivery, r.PNCCompleted, r.DeliveryKitsReceived,
	}
}

// Summary holds the scalar KPIs of a report.
type Summary struct {
	TotalPatients      int     `json:"total_patients"`
	ANC4Completed      int     `json:"anc4_completed"`
	ANC4CompletionRate float64 `json:"anc4_completion_rate"`
	PNCCompleted       int     `json:"pnc_completed"`
	PNCCompletionRate  float64 `json:"pnc_completion_rate"`
	LiveBirths         int     `json:"live_births"`
	Stillbirths        int     `json:"stillbirths"`
}

// NameValue is one labelled count in a chart series.
type NameValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// MonthCount is the number of registrations in a YYYY-MM month.
type MonthCount struct {
	Month         string `json:"month"`
	Registrations int    `json:"registrations"`
}

// AgeGroupCount is the number of patients in one AgeGroups bucket.
type AgeGroupCount struct {
	AgeGroup string `json:"age_group"`
	Count    int    `json:"count"`
}

// Charts holds the chart-ready aggregates of a report. Every series is a
// non-nil slice so an empty population serialises as [].
type Charts struct {
	LiteracyStatus       []NameValue     `json:"literacy_status"`
	ANCCompletion        []NameValue     `json:"anc_completion"`
	DeliveryOutcomes     []NameValue     `json:"delivery_outcomes"`
	MonthlyRegistrations []MonthCount    `json:"monthly_registrations"`
	AgeDistribution      []AgeGroupCount `json:"age_distribution"`
	InsuranceStatus      []NameValue     `json:"insurance_status"`
	DeliveryKits         []NameValue     `json:"delivery_kits"`
	GravidaDistribution  []NameValue     `json:"gravida_distribution"`
}

// Chart labels.
const (
	LabelANC4Completed   = "ANC4 Completed"
	LabelANCIncomplete   = "ANC Incomplete"
	LabelReceivedKit     = "Received Kit"
	LabelNoKit           = "No Kit"
	LabelUnknownLiteracy = "Unknown"
)

// AgeGroups lists the age_distribution buckets in display order.
var AgeGroups = []string{"Under 20", "20-24", "25-29", "30-34", "35+"}

// AgeGroup returns the age_distribution bucket for age. The buckets
// partition the integers. BuildCharts passes 0 for a missing age, the same
// default the row extract shows.
func AgeGroup(age int) string {
	switch {
	case age < 20:
		return AgeGroups[0]
	case age <= 24:
		return AgeGroups[1]
	case age <= 29:
		return AgeGroups[2]
	case age <= 34:
		return AgeGroups[3]
	default:
		return AgeGroups[4]
	}
}

// FilterByDateRange returns the records registered inside rng, preserving
// order. Every view of a report reduces over the same subset.
func FilterByDateRange(records []*patient.Patient, rng patient.DateRange) []*patient.Patient {
	out := make([]*patient.Patient, 0, len(records))
	for _, p := range records {
		if p == nil {
			continue
		}
		if rng.Contains(p.DateOfRegistration) {
			out = append(out, p)
		}
	}
	return out
}

// BuildRows projects records to export rows.
func BuildRows(records []*patient.Patient) []Row {
	rows := make([]Row, 0, len(records))
	for _, p := range records {
		rows = append(rows, Row{
			UniqueID:             p.UniqueID,
			FullName:             p.FullName,
			Age:                  p.AgeOrZero(),
			LiteracyStatus:       patient.Str(p.Literacy),
			PhoneNumber:          patient.Str(p.PhoneNumber),
			Community:            patient.Str(p.Community),
			LGA:                  patient.Str(p.LGA),
			Ward:                 patient.Str(p.Ward),
			HealthFacility:       patient.Str(p.HealthFacility),
			Gravida:              patient.Int(p.Gravida),
			Parity:               patient.Int(p.Parity),
			DateOfRegistration:   patient.DateString(p.DateOfRegistration),
			EDD:                  patient.DateString(p.EDD),
			ANCVisitsCount:       p.ANCVisitsCount,
			ANC4Completed:        yesNo(p.ANC4Completed),
			PlaceOfDelivery:      patient.Str(p.PlaceOfDelivery),
			DeliveryOutcome:      patient.Str(p.DeliveryOutcome),
			DateOfDelivery:       patient.DateString(p.DateOfDelivery),
			PNCCompleted:         yesNo(p.PNCCompleted),
			DeliveryKitsReceived: yesNo(p.DeliveryKitsReceived),
		})
	}
	return rows
}

// Summarize computes the scalar KPIs over records.
func Summarize(records []*patient.Patient) Summary {
	s := Summary{TotalPatients: len(records)}
	for _, p := range records {
		if p.ANC4Completed {
			s.ANC4Completed++
		}
		if p.PNCCompleted {
			s.PNCCompleted++
		}
		switch patient.Str(p.DeliveryOutcome) {
		case patient.OutcomeLiveBirth:
			s.LiveBirths++
		case patient.OutcomeStillbirth:
			s.Stillbirths++
		}
	}
	s.ANC4CompletionRate = Rate(s.ANC4Completed, s.TotalPatients)
	s.PNCCompletionRate = Rate(s.PNCCompleted, s.TotalPatients)
	return s
}

// Rate returns 100*part/total rounded to two decimals, or 0 when total is 0.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(100*float64(part)/float64(total)*100) / 100
}

// BuildCharts computes the eight chart aggregates over records.
func BuildCharts(records []*patient.Patient) Charts {
	literacy := map[string]int{}
	outcomes := map[string]int{}
	insurance := map[string]int{}
	months := map[string]int{}
	ages := map[string]int{}
	gravida := map[int]int{}
	var ancDone, ancOpen, kits, noKits int

	for _, p := range records {
		lit := patient.Str(p.Literacy)
		if lit == "" {
			lit = LabelUnknownLiteracy
		}
		literacy[lit]++

		if p.ANC4Completed {
			ancDone++
		} else {
			ancOpen++
		}

		if o := patient.Str(p.DeliveryOutcome); o != "" {
			outcomes[o]++
		}
		if p.DateOfRegistration != nil {
			months[p.DateOfRegistration.Format("2006-01")]++
		}
		ages[AgeGroup(p.AgeOrZero())]++
		if ins := patient.Str(p.InsuranceStatus); ins != "" {
			insurance[ins]++
		}

		if p.DeliveryKitsReceived {
			kits++
		} else {
			noKits++
		}

		if p.Gravida != nil {
			gravida[*p.Gravida]++
		}
	}

	return Charts{
		LiteracyStatus:       sortedNameValues(literacy),
		ANCCompletion:        twoBuckets(LabelANC4Completed, ancDone, LabelANCIncomplete, ancOpen),
		DeliveryOutcomes:     sortedNameValues(outcomes),
		MonthlyRegistrations: monthlySeries(months),
		AgeDistribution:      ageSeries(ages),
		InsuranceStatus:      sortedNameValues(insurance),
		DeliveryKits:         twoBuckets(LabelReceivedKit, kits, LabelNoKit, noKits),
		GravidaDistribution:  gravidaSeries(gravida),
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func sortedNameValues(counts map[string]int) []NameValue {
	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]NameValue, 0, len(names))
	for _, n := range names {
		out = append(out, NameValue{Name: n, Value: counts[n]})
	}
	return out
}

// twoBuckets omits a bucket with no members, matching grouped-count output.
func twoBuckets(yes string, yesN int, no string, noN int) []NameValue {
	out := make([]NameValue, 0, 2)
	if yesN > 0 {
		out = append(out, NameValue{Name: yes, Value: yesN})
	}
	if noN > 0 {
		out = append(out, NameValue{Name: no, Value: noN})
	}
	return out
}

func monthlySeries(counts map[string]int) []MonthCount {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]MonthCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthCount{Month: k, Registrations: counts[k]})
	}
	return out
}

func ageSeries(counts map[string]int) []AgeGroupCount {
	out := make([]AgeGroupCount, 0, len(AgeGroups))
	for _, g := range AgeGroups {
		if n := counts[g]; n > 0 {
			out = append(out, AgeGroupCount{AgeGroup: g, Count: n})
		}
	}
	return out
}

func gravidaSeries(counts map[int]int) []NameValue {
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]NameValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, NameValue{Name: fmt.Sprintf("Gravida %d", k), Value: counts[k]})
	}
	return out
}

package generator

import "encoding/json"

// metricPad widens the draw interval for one metric beyond its reference
// range so that a share of fresh draws land abnormal. Pads are asymmetric
// on purpose: several metrics skew toward abnormally-high synthetic draws.
type metricPad struct {
	Below float64
	Above float64
}

var metricPads = map[string]metricPad{
	"hemoglobin":  {2, 2},
	"wbc":         {2, 3},
	"rbc":         {0.5, 0.8},
	"platelets":   {50, 100},
	"hematocrit":  {5, 6},
	"mcv":         {8, 10},
	"mch":         {3, 4},
	"mchc":        {2, 2},
	"neutrophils": {10, 15},
	"lymphocytes": {8, 10},
	"monocytes":   {1.5, 2},
	"eosinophils": {1, 2},
	"basophils":   {0.5, 1},
}

// confidenceMetrics is the fixed subset that feeds abnormalConfidence.
// The per-test abnormality flag counts all 13 metrics; the confidence
// deliberately does not. Keep the two decoupled.
var confidenceMetrics = []string{"hemoglobin", "wbc", "platelets", "hematocrit"}

// minAbnormalFlags is the number of out-of-range metrics that makes a
// whole test abnormal.
const minAbnormalFlags = 2

// BloodTest is an immutable snapshot of one CBC panel, including the
// reference range set it was judged against.
type BloodTest struct {
	TestID             string
	PatientID          string
	TestDate           string
	Values             map[string]float64
	Ranges             RangeSet
	Flags              map[string]bool
	IsAbnormal         bool
	AbnormalConfidence float64
}

// GenerateBloodTest produces one test for the patient on the given date.
// ranges must come from ResolveRanges for the same patient. seeds supplies
// prior values for series continuity: a seeded metric keeps that value
// verbatim, everything else is drawn uniformly from the padded interval.
func (g *Generator) GenerateBloodTest(p Patient, ranges RangeSet, testDate string, seeds map[string]float64) BloodTest {
	values := make(map[string]float64, len(MetricNames))
	for _, name := range MetricNames {
		if v, ok := seeds[name]; ok {
			values[name] = v
			continue
		}
		r := ranges[name]
		pad := metricPads[name]
		v := g.FloatInRange(r.Min-pad.Below, r.Max+pad.Above)
		if name == "platelets" {
			values[name] = Round(v, 0)
		} else {
			values[name] = Round(v, 2)
		}
	}

	flags := make(map[string]bool, len(MetricNames))
	abnormalCount := 0
	for _, name := range MetricNames {
		r := ranges[name]
		out := values[name] < r.Min || values[name] > r.Max
		flags[name] = out
		if out {
			abnormalCount++
		}
	}

	return BloodTest{
		TestID:             g.NewID("T", 10),
		PatientID:          p.ID,
		TestDate:           testDate,
		Values:             values,
		Ranges:             ranges,
		Flags:              flags,
		IsAbnormal:         abnormalCount >= minAbnormalFlags,
		AbnormalConfidence: abnormalConfidence(values, ranges, flags),
	}
}

// abnormalConfidence scores how far outside range the four confidence
// metrics fall. Each flagged metric contributes min(0.5 + distance/width, 1);
// the result is the mean over the flagged subset, 0 when none of the four
// flag — even if other metrics do.
func abnormalConfidence(values map[string]float64, ranges RangeSet, flags map[string]bool) float64 {
	sum := 0.0
	n := 0
	for _, name := range confidenceMetrics {
		if !flags[name] {
			continue
		}
		r := ranges[name]
		width := r.Max - r.Min
		var distance float64
		if values[name] < r.Min {
			distance = (r.Min - values[name]) / width
		} else {
			distance = (values[name] - r.Max) / width
		}
		c := 0.5 + distance
		if c > 1.0 {
			c = 1.0
		}
		sum += c
		n++
	}
	if n == 0 {
		return 0
	}
	return Round(sum/float64(n), 2)
}

// MarshalJSON emits the flat wire shape the downstream trainer reads:
// metric values at the top level next to testId/patientId/testDate, with
// referenceRanges and abnormalFlags as nested objects.
func (t BloodTest) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.Values)+5)
	out["testId"] = t.TestID
	out["patientId"] = t.PatientID
	out["testDate"] = t.TestDate
	for name, v := range t.Values {
		out[name] = v
	}
	out["referenceRanges"] = t.Ranges

	flags := make(map[string]interface{}, len(t.Flags)+2)
	for name, f := range t.Flags {
		flags[name] = f
	}
	flags["isAbnormal"] = t.IsAbnormal
	flags["abnormalConfidence"] = t.AbnormalConfidence
	out["abnormalFlags"] = flags

	return json.Marshal(out)
}

// UnmarshalJSON restores a BloodTest from the flat wire shape.
func (t *BloodTest) UnmarshalJSON(data []byte) error {
	var raw struct {
		TestID    string                     `json:"testId"`
		PatientID string                     `json:"patientId"`
		TestDate  string                     `json:"testDate"`
		Ranges    RangeSet                   `json:"referenceRanges"`
		Flags     map[string]json.RawMessage `json:"abnormalFlags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	t.TestID = raw.TestID
	t.PatientID = raw.PatientID
	t.TestDate = raw.TestDate
	t.Ranges = raw.Ranges
	t.Values = make(map[string]float64, len(MetricNames))
	for _, name := range MetricNames {
		if msg, ok := fields[name]; ok {
			var v float64
			if err := json.Unmarshal(msg, &v); err != nil {
				return err
			}
			t.Values[name] = v
		}
	}

	t.Flags = make(map[string]bool, len(MetricNames))
	for name, msg := range raw.Flags {
		switch name {
		case "isAbnormal":
			if err := json.Unmarshal(msg, &t.IsAbnormal); err != nil {
				return err
			}
		case "abnormalConfidence":
			if err := json.Unmarshal(msg, &t.AbnormalConfidence); err != nil {
				return err
			}
		default:
			var f bool
			if err := json.Unmarshal(msg, &f); err != nil {
				return err
			}
			t.Flags[name] = f
		}
	}
	return nil
}

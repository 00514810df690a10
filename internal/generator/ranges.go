package generator

// The 13 CBC metrics, in canonical order. Counts are absolute
// (10^9/L, 10^12/L) for the cell counts and percentages for the
// differential; units are documented next to each range below.
var MetricNames = []string{
	"hemoglobin",
	"wbc",
	"rbc",
	"platelets",
	"hematocrit",
	"mcv",
	"mch",
	"mchc",
	"neutrophils",
	"lymphocytes",
	"monocytes",
	"eosinophils",
	"basophils",
}

// ReferenceRange is the clinically-normal interval for one metric.
type ReferenceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RangeSet maps metric name to its resolved reference range. It is copied
// by value into every generated test; tests never share a mutable set.
type RangeSet map[string]ReferenceRange

var maleRanges = RangeSet{
	"hemoglobin":  {13.5, 17.5}, // g/dL
	"wbc":         {4.5, 11.0},  // 10^9/L
	"rbc":         {4.5, 5.9},   // 10^12/L
	"platelets":   {150, 450},   // 10^9/L
	"hematocrit":  {41.0, 53.0}, // %
	"mcv":         {80.0, 100.0}, // fL
	"mch":         {27.0, 33.0}, // pg
	"mchc":        {32.0, 36.0}, // g/dL
	"neutrophils": {40.0, 70.0}, // %
	"lymphocytes": {20.0, 40.0}, // %
	"monocytes":   {2.0, 8.0},   // %
	"eosinophils": {1.0, 4.0},   // %
	"basophils":   {0.0, 1.0},   // %
}

var femaleRanges = RangeSet{
	"hemoglobin":  {12.0, 15.5},
	"wbc":         {4.5, 11.0},
	"rbc":         {4.1, 5.1},
	"platelets":   {150, 450},
	"hematocrit":  {36.0, 46.0},
	"mcv":         {80.0, 100.0},
	"mch":         {27.0, 33.0},
	"mchc":        {32.0, 36.0},
	"neutrophils": {40.0, 70.0},
	"lymphocytes": {20.0, 40.0},
	"monocytes":   {2.0, 8.0},
	"eosinophils": {1.0, 4.0},
	"basophils":   {0.0, 1.0},
}

// elderlyAge is the cutoff above which hemoglobin and wbc ranges shift.
const elderlyAge = 65

// ResolveRanges returns the reference range set for a patient. The result
// is a fresh copy; for age > 65 both hemoglobin bounds drop by 0.5 and the
// wbc max drops by 0.5 (min unchanged). The adjustment is applied here,
// not stored: the adjusted set is "the" range set for that patient for the
// rest of generation.
func ResolveRanges(p Patient) RangeSet {
	base := maleRanges
	if p.Gender == "F" {
		base = femaleRanges
	}

	out := make(RangeSet, len(base))
	for name, r := range base {
		out[name] = r
	}

	if p.Age > elderlyAge {
		hgb := out["hemoglobin"]
		out["hemoglobin"] = ReferenceRange{Min: hgb.Min - 0.5, Max: hgb.Max - 0.5}
		wbc := out["wbc"]
		out["wbc"] = ReferenceRange{Min: wbc.Min, Max: wbc.Max - 0.5}
	}

	return out
}

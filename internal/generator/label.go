package generator

import "encoding/json"

// Patient labels.
const (
	LabelNormal   = "NORMAL"
	LabelAbnormal = "ABNORMAL"
)

const (
	// abnormalRatioThreshold is the share of abnormal tests that qualifies
	// a patient for an ABNORMAL label.
	abnormalRatioThreshold = 0.3
	// highConfidenceThreshold qualifies a patient on a single test alone.
	highConfidenceThreshold = 0.8
)

// PatientData is the per-patient output unit: profile, date-ordered test
// series, and the ground-truth label with its confidence.
type PatientData struct {
	Patient    Patient
	Tests      []BloodTest
	Label      string
	Confidence float64
}

// LabelPatient reduces a test series to a NORMAL/ABNORMAL label with a
// confidence score. A patient qualifies when at least 30% of tests are
// abnormal or any single test carries confidence above 0.8. The final
// label is additionally gated by an independent Bernoulli draw on
// abnormalProbability: a qualifying patient is only labeled ABNORMAL when
// that draw also succeeds. The same probability therefore drives both how
// many series are designed to trend abnormal and how many qualifying
// patients get the label — a calibration quirk the downstream dataset
// statistics depend on.
func (g *Generator) LabelPatient(tests []BloodTest, abnormalProbability float64) (label string, confidence float64) {
	abnormalCount := 0
	confidenceSum := 0.0
	anyHighConfidence := false
	for _, t := range tests {
		if t.IsAbnormal {
			abnormalCount++
			confidenceSum += t.AbnormalConfidence
		}
		if t.AbnormalConfidence > highConfidenceThreshold {
			anyHighConfidence = true
		}
	}

	abnormalRatio := 0.0
	if len(tests) > 0 {
		abnormalRatio = float64(abnormalCount) / float64(len(tests))
	}
	avgConfidence := 0.0
	if abnormalCount > 0 {
		avgConfidence = confidenceSum / float64(abnormalCount)
	}

	qualifies := abnormalRatio >= abnormalRatioThreshold || anyHighConfidence
	isAbnormal := qualifies && g.Chance(abnormalProbability)

	if isAbnormal {
		return LabelAbnormal, avgConfidence
	}
	return LabelNormal, 1 - avgConfidence
}

// GeneratePatientData runs the full per-patient pipeline: profile, series
// with trend injection, and label aggregation.
func (g *Generator) GeneratePatientData(testCount, monthsRange int, abnormalProbability float64) PatientData {
	patient := g.GeneratePatient()
	tests := g.GenerateSeries(patient, testCount, monthsRange, abnormalProbability)
	label, confidence := g.LabelPatient(tests, abnormalProbability)
	return PatientData{
		Patient:    patient,
		Tests:      tests,
		Label:      label,
		Confidence: confidence,
	}
}

// MarshalJSON flattens the profile into the top-level object, matching the
// shape the downstream trainer reads (patientId/age/gender next to tests).
func (p PatientData) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"patientId":      p.Patient.ID,
		"age":            p.Patient.Age,
		"gender":         p.Patient.Gender,
		"medicalHistory": p.Patient.MedicalHistory,
		"tests":          p.Tests,
		"label":          p.Label,
		"confidence":     p.Confidence,
	})
}

// UnmarshalJSON restores PatientData from the flat wire shape.
func (p *PatientData) UnmarshalJSON(data []byte) error {
	var raw struct {
		PatientID      string      `json:"patientId"`
		Age            int         `json:"age"`
		Gender         string      `json:"gender"`
		MedicalHistory []string    `json:"medicalHistory"`
		Tests          []BloodTest `json:"tests"`
		Label          string      `json:"label"`
		Confidence     float64     `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Patient = Patient{
		ID:             raw.PatientID,
		Age:            raw.Age,
		Gender:         raw.Gender,
		MedicalHistory: raw.MedicalHistory,
	}
	p.Tests = raw.Tests
	p.Label = raw.Label
	p.Confidence = raw.Confidence
	return nil
}

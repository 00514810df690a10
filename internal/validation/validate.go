package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/followup/followup/internal/dataset"
	"github.com/followup/followup/internal/generator"
	"github.com/followup/followup/internal/inference"
)

const reportFile = "validation-report.json"

// Report is the full validation result written to disk.
type Report struct {
	ModelInfo        inference.Info `json:"model_info"`
	DataDir          string         `json:"data_dir"`
	SampleCount      int            `json:"sample_count"`
	AbnormalCount    int            `json:"abnormal_count"`
	ClinicalSafety   SafetyMetrics  `json:"clinical_safety"`
	Fairness         FairnessReport `json:"fairness"`
	ValidationPassed bool           `json:"validation_passed"`
	Timestamp        string         `json:"timestamp"`
}

// Validator scores a labeled dataset with the model and checks the
// results against the clinical safety and fairness gates.
type Validator struct {
	model  *inference.Model
	logger zerolog.Logger
	now    func() time.Time
}

func NewValidator(model *inference.Model, logger zerolog.Logger) *Validator {
	return &Validator{model: model, logger: logger, now: time.Now}
}

// SetClock replaces the timestamp source. Used in tests.
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Run loads the dataset from dataDir, scores every patient, and writes
// the report to reportsDir. The report is returned as well so callers
// can inspect the outcome.
func (v *Validator) Run(dataDir, reportsDir string) (*Report, error) {
	patients, err := dataset.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	v.logger.Info().
		Int("patients", len(patients)).
		Str("data_dir", dataDir).
		Msg("starting validation run")

	samples, err := v.score(patients)
	if err != nil {
		return nil, err
	}

	report := v.buildReport(dataDir, samples)
	if err := v.writeReport(reportsDir, report); err != nil {
		return nil, err
	}

	v.logger.Info().
		Bool("passed", report.ValidationPassed).
		Bool("clinically_safe", report.ClinicalSafety.IsClinicallySafe).
		Bool("fair", report.Fairness.IsFair).
		Float64("sensitivity", report.ClinicalSafety.OptimalSensitivity).
		Float64("npv", report.ClinicalSafety.OptimalNPV).
		Msg("validation run complete")
	return report, nil
}

// Evaluate scores the patients without touching the filesystem.
func (v *Validator) Evaluate(patients []generator.PatientData) (*Report, error) {
	samples, err := v.score(patients)
	if err != nil {
		return nil, err
	}
	return v.buildReport("", samples), nil
}

func (v *Validator) score(patients []generator.PatientData) ([]Sample, error) {
	samples := make([]Sample, 0, len(patients))
	for _, p := range patients {
		pred, err := v.model.Predict(p.Patient.ID, p.Patient.Age, p.Patient.Gender, p.Tests)
		if err != nil {
			return nil, fmt.Errorf("validation: scoring patient %s: %w", p.Patient.ID, err)
		}
		samples = append(samples, Sample{
			PatientID:   p.Patient.ID,
			Age:         p.Patient.Age,
			Gender:      p.Patient.Gender,
			Actual:      p.Label == generator.LabelAbnormal,
			Predicted:   pred.Prediction == generator.LabelAbnormal,
			Probability: pred.Probability,
		})
	}
	return samples, nil
}

func (v *Validator) buildReport(dataDir string, samples []Sample) *Report {
	safety := ClinicalSafety(samples, v.model.Threshold())
	fairness := Fairness(samples)

	abnormal := 0
	for _, s := range samples {
		if s.Actual {
			abnormal++
		}
	}

	return &Report{
		ModelInfo:        v.model.Info(),
		DataDir:          dataDir,
		SampleCount:      len(samples),
		AbnormalCount:    abnormal,
		ClinicalSafety:   safety,
		Fairness:         fairness,
		ValidationPassed: safety.IsClinicallySafe && fairness.IsFair,
		Timestamp:        v.now().UTC().Format(time.RFC3339),
	}
}

func (v *Validator) writeReport(reportsDir string, report *Report) error {
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return fmt.Errorf("validation: creating reports dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("validation: encoding report: %w", err)
	}
	path := filepath.Join(reportsDir, reportFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("validation: writing report: %w", err)
	}
	v.logger.Info().Str("path", path).Msg("validation report written")
	return nil
}

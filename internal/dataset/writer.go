// Package dataset orchestrates full dataset runs: it fans patient
// generation out over a worker pool, writes one JSON document per patient,
// and emits a dataset-level summary. The core generator never touches the
// filesystem; all I/O lives here.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/followup/followup/internal/generator"
)

// Options controls one generation run. All fields are required except
// Seed (0 = time-based) and Workers (0 = serial).
type Options struct {
	PatientCount        int     `json:"patientCount"`
	MinTests            int     `json:"minTests"`
	MaxTests            int     `json:"maxTests"`
	TimeRangeMonths     int     `json:"timeRangeMonths"`
	AbnormalProbability float64 `json:"abnormalProbability"`
	OutputDir           string  `json:"outputDir"`
	GenerateSummary     bool    `json:"generateSummary"`
	Seed                int64   `json:"seed"`
	Workers             int     `json:"-"`
}

// Summary is the dataset-level report written to summary.json.
type Summary struct {
	RunID                 string  `json:"runId"`
	TotalPatients         int     `json:"totalPatients"`
	AbnormalPatients      int     `json:"abnormalPatients"`
	NormalPatients        int     `json:"normalPatients"`
	AbnormalPercentage    float64 `json:"abnormalPercentage"`
	AverageTestsPerPatient float64 `json:"averageTestsPerPatient"`
	GeneratedAt           string  `json:"generatedAt"`
	Configuration         Options `json:"configuration"`
}

// Writer runs dataset generation and persists the results.
type Writer struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewWriter creates a writer for one run. A zero Seed picks a time-based
// one at generation time, making the run non-reproducible on purpose.
func NewWriter(opts Options, logger zerolog.Logger) *Writer {
	return &Writer{opts: opts, logger: logger, now: time.Now}
}

// SetClock overrides the timestamp source, for reproducible summaries in
// tests.
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// Run generates every patient and writes the per-patient files, then the
// summary when enabled. Each patient gets its own generator seeded
// base+index, so output bytes do not depend on worker count or
// scheduling, and each patient's series is still generated serially.
func (w *Writer) Run() (*Summary, error) {
	opts := w.opts
	if opts.Seed == 0 {
		opts.Seed = w.now().UnixNano()
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	start := w.now()
	w.logger.Info().
		Int("patients", opts.PatientCount).
		Int64("seed", opts.Seed).
		Str("output_dir", opts.OutputDir).
		Msg("starting dataset generation")

	records := make([]generator.PatientData, opts.PatientCount)
	errs := make([]error, opts.PatientCount)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > opts.PatientCount {
		workers = opts.PatientCount
	}

	var wg sync.WaitGroup
	indexes := make(chan int)
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				g := generator.New(opts.Seed + int64(i))
				g.SetClock(w.now)
				testCount := g.IntInRange(float64(opts.MinTests), float64(opts.MaxTests))
				pd := g.GeneratePatientData(testCount, opts.TimeRangeMonths, opts.AbnormalProbability)
				records[i] = pd
				errs[i] = w.writePatient(opts.OutputDir, pd)
			}
		}()
	}
	for i := 0; i < opts.PatientCount; i++ {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("patient %d: %w", i, err)
		}
	}

	summary := w.summarize(records, opts)
	if opts.GenerateSummary {
		if err := w.writeSummary(opts.OutputDir, summary); err != nil {
			return nil, err
		}
	}

	w.logger.Info().
		Int("abnormal", summary.AbnormalPatients).
		Int("normal", summary.NormalPatients).
		Dur("elapsed", w.now().Sub(start)).
		Msg("dataset generation complete")

	return summary, nil
}

func (w *Writer) writePatient(dir string, pd generator.PatientData) error {
	data, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return fmt.Errorf("encode patient %s: %w", pd.Patient.ID, err)
	}
	path := filepath.Join(dir, "patient-"+pd.Patient.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *Writer) summarize(records []generator.PatientData, opts Options) *Summary {
	abnormal := 0
	totalTests := 0
	for _, pd := range records {
		if pd.Label == generator.LabelAbnormal {
			abnormal++
		}
		totalTests += len(pd.Tests)
	}

	total := len(records)
	pct := 0.0
	avg := 0.0
	if total > 0 {
		pct = generator.Round(float64(abnormal)/float64(total)*100, 2)
		avg = generator.Round(float64(totalTests)/float64(total), 2)
	}

	return &Summary{
		RunID:                 uuid.NewString(),
		TotalPatients:         total,
		AbnormalPatients:      abnormal,
		NormalPatients:        total - abnormal,
		AbnormalPercentage:    pct,
		AverageTestsPerPatient: avg,
		GeneratedAt:           w.now().UTC().Format(time.RFC3339),
		Configuration:         opts,
	}
}

func (w *Writer) writeSummary(dir string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	path := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

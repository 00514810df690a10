// Package inference scores patient blood test series for follow-up
// risk and serves predictions over HTTP.
package inference

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/followup/followup/internal/features"
	"github.com/followup/followup/internal/generator"
)

const (
	modelName    = "followup-risk-rules"
	modelVersion = "1.0.0"

	defaultThreshold = 0.5

	// Evidence weights for the logistic score. The out-of-range
	// distance is a percentage, so its weight is small relative to
	// the per-metric flag count.
	outWeight    = 0.05
	countWeight  = 0.8
	trendWeight  = 2.0
	evidenceBias = 1.5

	maxContributors = 5
)

// Contribution describes how much a single feature pushed the score.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	IsAbnormal   bool    `json:"is_abnormal"`
}

// Prediction is the scoring result for one patient.
type Prediction struct {
	PatientID       string         `json:"patientId"`
	Prediction      string         `json:"prediction"`
	Probability     float64        `json:"probability"`
	Confidence      float64        `json:"confidence"`
	RiskScore       int            `json:"risk_score"`
	TopContributors []Contribution `json:"top_contributors"`
	ModelVersion    string         `json:"model_version"`
	Timestamp       string         `json:"timestamp"`
	Error           string         `json:"error,omitempty"`
}

// Info describes the loaded model.
type Info struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	CreatedAt    string   `json:"created_at"`
	Threshold    float64  `json:"threshold"`
	FeatureNames []string `json:"feature_names"`
}

// Model is a deterministic rule-based scorer. It accumulates evidence
// from out-of-range distances, the abnormal metric count and series
// trends, and squashes it through a logistic curve into a probability.
type Model struct {
	threshold float64
	createdAt string
	now       func() time.Time
}

// NewModel returns a scorer with the given decision threshold.
// Thresholds outside (0, 1) fall back to the default.
func NewModel(threshold float64) *Model {
	if threshold <= 0 || threshold >= 1 {
		threshold = defaultThreshold
	}
	return &Model{
		threshold: threshold,
		createdAt: time.Now().UTC().Format(time.RFC3339),
		now:       time.Now,
	}
}

// SetClock replaces the timestamp source. Used in tests.
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}

// Threshold returns the decision threshold.
func (m *Model) Threshold() float64 {
	return m.threshold
}

// Info returns model metadata for the info endpoint.
func (m *Model) Info() Info {
	names := make([]string, 0, len(features.Metrics))
	names = append(names, features.Metrics...)
	return Info{
		Name:         modelName,
		Version:      modelVersion,
		CreatedAt:    m.createdAt,
		Threshold:    m.threshold,
		FeatureNames: names,
	}
}

// Predict scores a patient from their test series.
func (m *Model) Predict(patientID string, age int, gender string, tests []generator.BloodTest) (*Prediction, error) {
	set, err := features.Extract(patientID, age, gender, tests)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	p := m.probability(set)
	label := generator.LabelNormal
	if p >= m.threshold {
		label = generator.LabelAbnormal
	}

	return &Prediction{
		PatientID:       patientID,
		Prediction:      label,
		Probability:     p,
		Confidence:      2 * math.Abs(p-0.5),
		RiskScore:       riskScore(p),
		TopContributors: m.contributors(set),
		ModelVersion:    modelVersion,
		Timestamp:       m.now().UTC().Format(time.RFC3339),
	}, nil
}

// probability squashes the accumulated evidence into (0, 1).
func (m *Model) probability(set *features.Set) float64 {
	evidence := countWeight * set.Values["abnormal_count"]
	for _, metric := range features.Metrics {
		evidence += outWeight * set.Values[metric+"_out"]
		evidence += trendWeight * relativeTrend(set, metric)
	}
	return 1 / (1 + math.Exp(-(evidence - evidenceBias)))
}

// relativeTrend is the metric's slope relative to its current value,
// capped at 1 so a single steep trend cannot dominate.
func relativeTrend(set *features.Set, metric string) float64 {
	value := math.Abs(set.Values[metric])
	trend := math.Abs(set.Values[metric+"_trend"])
	return math.Min(1, trend/(value+0.001))
}

// contributors returns the strongest evidence sources, largest first.
func (m *Model) contributors(set *features.Set) []Contribution {
	out := make([]Contribution, 0, len(features.Metrics))
	for _, metric := range features.Metrics {
		value, ok := set.Latest.Values[metric]
		if !ok {
			continue
		}
		score := outWeight * set.Values[metric+"_out"]
		score += trendWeight * relativeTrend(set, metric)

		abnormal := false
		if r, ok := set.Latest.Ranges[metric]; ok {
			abnormal = value < r.Min || value > r.Max
			if abnormal {
				score += countWeight
			}
		}
		out = append(out, Contribution{
			Feature:      metric,
			Value:        value,
			Contribution: score,
			IsAbnormal:   abnormal,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Contribution > out[j].Contribution
	})
	if len(out) > maxContributors {
		out = out[:maxContributors]
	}
	return out
}

// riskScore maps a probability to a 1-10 scale.
func riskScore(p float64) int {
	score := int(p*10) + 1
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

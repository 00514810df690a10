// Package validation checks the scoring model against a labeled
// dataset: classification quality, clinical safety and fairness across
// demographic groups.
package validation

import (
	"sort"
)

const (
	targetSensitivity = 0.95
	targetNPV         = 0.9
	sweepSteps        = 100
	fairnessTolerance = 0.1
)

// Sample pairs one patient's ground truth with the model's output.
type Sample struct {
	PatientID   string  `json:"patientId"`
	Age         int     `json:"age"`
	Gender      string  `json:"gender"`
	Actual      bool    `json:"actual"`
	Predicted   bool    `json:"predicted"`
	Probability float64 `json:"probability"`
}

// Confusion is a binary confusion matrix.
type Confusion struct {
	TP int `json:"tp"`
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// NewConfusion tallies actual versus predicted outcomes.
func NewConfusion(samples []Sample) Confusion {
	var c Confusion
	for _, s := range samples {
		switch {
		case s.Actual && s.Predicted:
			c.TP++
		case s.Actual && !s.Predicted:
			c.FN++
		case !s.Actual && s.Predicted:
			c.FP++
		default:
			c.TN++
		}
	}
	return c
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c Confusion) Accuracy() float64 {
	return ratio(c.TP+c.TN, c.TP+c.TN+c.FP+c.FN)
}

func (c Confusion) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

// Recall is the true positive rate, also reported as sensitivity.
func (c Confusion) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c Confusion) Specificity() float64 {
	return ratio(c.TN, c.TN+c.FP)
}

func (c Confusion) PPV() float64 {
	return c.Precision()
}

func (c Confusion) NPV() float64 {
	return ratio(c.TN, c.TN+c.FN)
}

// SafetyMetrics is the clinical safety report for one evaluation. The
// optimal threshold is found by sweeping the probability range and
// keeping the threshold with the best specificity among those that
// reach the target sensitivity.
type SafetyMetrics struct {
	Confusion Confusion `json:"confusion_matrix"`

	Accuracy    float64 `json:"accuracy"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1"`
	ROCAUC      float64 `json:"roc_auc"`
	Sensitivity float64 `json:"sensitivity"`
	Specificity float64 `json:"specificity"`
	PPV         float64 `json:"ppv"`
	NPV         float64 `json:"npv"`

	FalseNegativeCount   int     `json:"false_negative_count"`
	FalseNegativeRate    float64 `json:"false_negative_rate"`
	AvgFalseNegativeProb float64 `json:"avg_false_negative_prob"`
	ThresholdDistance    float64 `json:"threshold_distance"`

	OptimalThreshold   float64 `json:"optimal_threshold"`
	OptimalSensitivity float64 `json:"optimal_sensitivity"`
	OptimalSpecificity float64 `json:"optimal_specificity"`
	OptimalPPV         float64 `json:"optimal_ppv"`
	OptimalNPV         float64 `json:"optimal_npv"`

	IsClinicallySafe bool `json:"is_clinically_safe"`
}

// ClinicalSafety evaluates the samples at the given decision threshold.
// False negatives are the cases that matter most clinically, so they
// get their own analysis: how many, how likely they looked, and how far
// below the threshold they scored.
func ClinicalSafety(samples []Sample, threshold float64) SafetyMetrics {
	c := NewConfusion(samples)
	m := SafetyMetrics{
		Confusion:   c,
		Accuracy:    c.Accuracy(),
		Precision:   c.Precision(),
		Recall:      c.Recall(),
		F1:          c.F1(),
		ROCAUC:      aucScore(samples),
		Sensitivity: c.Recall(),
		Specificity: c.Specificity(),
		PPV:         c.PPV(),
		NPV:         c.NPV(),
	}

	var fnProbSum, fnDistSum float64
	for _, s := range samples {
		if s.Actual && !s.Predicted {
			m.FalseNegativeCount++
			fnProbSum += s.Probability
			fnDistSum += threshold - s.Probability
		}
	}
	m.FalseNegativeRate = ratio(m.FalseNegativeCount, c.TP+c.FN)
	if m.FalseNegativeCount > 0 {
		m.AvgFalseNegativeProb = fnProbSum / float64(m.FalseNegativeCount)
		m.ThresholdDistance = fnDistSum / float64(m.FalseNegativeCount)
	}

	m.OptimalThreshold = 0.5
	bestSpecificity := 0.0
	for i := 0; i < sweepSteps; i++ {
		t := float64(i) / float64(sweepSteps-1)
		ct := confusionAt(samples, t)
		if ct.Recall() >= targetSensitivity && ct.Specificity() > bestSpecificity {
			m.OptimalThreshold = t
			bestSpecificity = ct.Specificity()
		}
	}

	opt := confusionAt(samples, m.OptimalThreshold)
	m.OptimalSensitivity = opt.Recall()
	m.OptimalSpecificity = opt.Specificity()
	m.OptimalPPV = opt.PPV()
	m.OptimalNPV = opt.NPV()

	m.IsClinicallySafe = m.OptimalSensitivity >= targetSensitivity && m.OptimalNPV >= targetNPV
	return m
}

// confusionAt reclassifies the samples with a different threshold,
// using the stored probabilities.
func confusionAt(samples []Sample, threshold float64) Confusion {
	var c Confusion
	for _, s := range samples {
		predicted := s.Probability >= threshold
		switch {
		case s.Actual && predicted:
			c.TP++
		case s.Actual && !predicted:
			c.FN++
		case !s.Actual && predicted:
			c.FP++
		default:
			c.TN++
		}
	}
	return c
}

// aucScore computes ROC AUC by rank statistic, with average ranks for
// tied probabilities. Returns 0 when only one class is present.
func aucScore(samples []Sample) float64 {
	nPos, nNeg := 0, 0
	for _, s := range samples {
		if s.Actual {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0
	}

	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Probability < ordered[j].Probability
	})

	rankSum := 0.0
	i := 0
	for i < len(ordered) {
		j := i
		for j < len(ordered) && ordered[j].Probability == ordered[i].Probability {
			j++
		}
		// 1-based average rank for the tie block [i, j).
		avgRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if ordered[k].Actual {
				rankSum += avgRank
			}
		}
		i = j
	}
	return (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg))
}

// GroupMetrics summarizes model behavior within one demographic group.
type GroupMetrics struct {
	Count             int     `json:"count"`
	PositiveRate      float64 `json:"positive_rate"`
	TruePositiveRate  float64 `json:"true_positive_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	Accuracy          float64 `json:"accuracy"`
	AUC               float64 `json:"auc"`
}

// ParityCheck compares one rate across groups.
type ParityCheck struct {
	MaxDifference float64 `json:"max_difference"`
	IsFair        bool    `json:"is_fair"`
}

// FairnessReport checks that prediction rates and true positive rates
// do not diverge across gender and age groups.
type FairnessReport struct {
	IsFair             bool                    `json:"is_fair"`
	Gender             map[string]GroupMetrics `json:"gender"`
	AgeGroups          map[string]GroupMetrics `json:"age_groups"`
	DemographicParity  map[string]ParityCheck  `json:"demographic_parity"`
	EqualOpportunity   map[string]ParityCheck  `json:"equal_opportunity"`
}

// AgeGroup buckets an adult age for fairness reporting.
func AgeGroup(age int) string {
	switch {
	case age <= 40:
		return "18-40"
	case age <= 60:
		return "41-60"
	default:
		return "61-85"
	}
}

// Fairness evaluates demographic parity (positive rate) and equal
// opportunity (true positive rate) across gender and age groups. A gap
// above the tolerance in either check marks the model unfair.
func Fairness(samples []Sample) FairnessReport {
	byGender := groupBy(samples, func(s Sample) string { return s.Gender })
	byAge := groupBy(samples, func(s Sample) string { return AgeGroup(s.Age) })

	r := FairnessReport{
		Gender:    groupMetrics(byGender),
		AgeGroups: groupMetrics(byAge),
		DemographicParity: map[string]ParityCheck{},
		EqualOpportunity:  map[string]ParityCheck{},
	}

	r.DemographicParity["gender"] = parity(r.Gender, func(g GroupMetrics) float64 { return g.PositiveRate })
	r.DemographicParity["age_group"] = parity(r.AgeGroups, func(g GroupMetrics) float64 { return g.PositiveRate })
	r.EqualOpportunity["gender"] = parity(r.Gender, func(g GroupMetrics) float64 { return g.TruePositiveRate })
	r.EqualOpportunity["age_group"] = parity(r.AgeGroups, func(g GroupMetrics) float64 { return g.TruePositiveRate })

	r.IsFair = r.DemographicParity["gender"].IsFair &&
		r.DemographicParity["age_group"].IsFair &&
		r.EqualOpportunity["gender"].IsFair &&
		r.EqualOpportunity["age_group"].IsFair
	return r
}

func groupBy(samples []Sample, key func(Sample) string) map[string][]Sample {
	out := map[string][]Sample{}
	for _, s := range samples {
		k := key(s)
		out[k] = append(out[k], s)
	}
	return out
}

func groupMetrics(groups map[string][]Sample) map[string]GroupMetrics {
	out := map[string]GroupMetrics{}
	for name, members := range groups {
		c := NewConfusion(members)
		out[name] = GroupMetrics{
			Count:             len(members),
			PositiveRate:      ratio(c.TP+c.FP, len(members)),
			TruePositiveRate:  c.Recall(),
			FalsePositiveRate: ratio(c.FP, c.FP+c.TN),
			Accuracy:          c.Accuracy(),
			AUC:               aucScore(members),
		}
	}
	return out
}

func parity(groups map[string]GroupMetrics, rate func(GroupMetrics) float64) ParityCheck {
	first := true
	var lo, hi float64
	for _, g := range groups {
		v := rate(g)
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	diff := hi - lo
	return ParityCheck{MaxDifference: diff, IsFair: diff < fairnessTolerance}
}

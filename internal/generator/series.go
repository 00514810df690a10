package generator

import "sort"

// trendCandidates are the metrics a developing condition may drift.
// The minor differential percentages (monocytes, eosinophils, basophils)
// are excluded: a sustained drift there is not clinically interesting.
var trendCandidates = []string{
	"hemoglobin", "wbc", "rbc", "platelets", "hematocrit",
	"mcv", "mch", "mchc", "neutrophils", "lymphocytes",
}

const (
	// trendStep is the per-step multiplicative drift; strength ramps over
	// the first three steps then plateaus at 3*trendStep.
	trendStep = 0.05
	// trendNoise keeps the drift from being perfectly smooth without
	// drowning it out.
	trendNoise = 0.02
	// boundaryPush forces the final two tests of a trending series past
	// the range boundary by 10%, guaranteeing the trend reads abnormal.
	boundaryPush = 0.1
)

// GenerateSeries produces count tests for the patient, sorted ascending by
// date (duplicate dates are kept). With probability abnormalProbability one
// candidate metric drifts in a random direction across the series; every
// other metric carries its previous value forward verbatim, so only the
// first test is a fresh draw.
func (g *Generator) GenerateSeries(p Patient, count, monthsRange int, abnormalProbability float64) []BloodTest {
	ranges := ResolveRanges(p)

	dates := make([]string, count)
	for i := range dates {
		dates[i] = g.DateInPastMonths(monthsRange)
	}
	sort.Strings(dates)

	hasTrend := g.Chance(abnormalProbability)
	var target string
	direction := 1.0
	if hasTrend {
		target = trendCandidates[g.rng.Intn(len(trendCandidates))]
		if g.Chance(0.5) {
			direction = -1.0
		}
	}

	tests := make([]BloodTest, 0, count)
	tests = append(tests, g.GenerateBloodTest(p, ranges, dates[0], nil))

	for i := 1; i < count; i++ {
		prev := tests[i-1]
		seeds := make(map[string]float64, len(MetricNames))
		for _, name := range MetricNames {
			seeds[name] = prev.Values[name]
		}

		if hasTrend {
			step := i
			if step > 3 {
				step = 3
			}
			factor := trendStep * float64(step)
			v := g.ValueWithTrend(prev.Values[target], factor, trendNoise, direction)
			if target == "platelets" {
				v = Round(v, 0)
			} else {
				v = Round(v, 2)
			}
			if i >= count-2 {
				r := ranges[target]
				if direction > 0 {
					if limit := r.Max * (1 + boundaryPush); v < limit {
						v = limit
					}
				} else {
					if limit := r.Min * (1 - boundaryPush); v > limit {
						v = limit
					}
				}
			}
			seeds[target] = v
		}

		tests = append(tests, g.GenerateBloodTest(p, ranges, dates[i], seeds))
	}

	return tests
}

package generator

import (
	"sort"
	"testing"
)

// trendingSeries keeps generating until a series with an injected trend on
// the wanted metric and direction appears. abnormalProbability 1.0 forces
// the trend decision; target and direction are still random, so we resample.
func trendingSeries(t *testing.T, metric string, direction float64, count int) (*Generator, Patient, []BloodTest) {
	t.Helper()
	for seed := int64(1); seed < 500; seed++ {
		g := newTestGenerator(seed)
		p := g.GeneratePatient()
		ranges := ResolveRanges(p)
		tests := g.GenerateSeries(p, count, 6, 1.0)

		// The injected target is the one metric that is not a verbatim
		// copy between consecutive tests; everything else carries over
		// exactly. Identify it, then match the wanted direction.
		if tests[1].Values[metric] == tests[0].Values[metric] {
			continue
		}
		driftedUp := tests[1].Values[metric] > tests[0].Values[metric]
		last := tests[count-1].Values[metric]
		r := ranges[metric]
		if direction > 0 && driftedUp && last >= r.Max*1.1 {
			return g, p, tests
		}
		if direction < 0 && !driftedUp && last <= r.Min*0.9 {
			return g, p, tests
		}
	}
	t.Fatalf("no %s trend in direction %v found across 500 seeds", metric, direction)
	return nil, Patient{}, nil
}

func TestGenerateSeries_CountAndOrder(t *testing.T) {
	g := newTestGenerator(31)
	p := g.GeneratePatient()
	tests := g.GenerateSeries(p, 7, 12, 0.5)
	if len(tests) != 7 {
		t.Fatalf("len = %d, want 7", len(tests))
	}
	if !sort.SliceIsSorted(tests, func(i, j int) bool { return tests[i].TestDate < tests[j].TestDate }) {
		t.Error("series not sorted ascending by date")
	}
	for _, bt := range tests {
		if bt.PatientID != p.ID {
			t.Errorf("test %s has patient %s, want %s", bt.TestID, bt.PatientID, p.ID)
		}
	}
}

func TestGenerateSeries_NoTrendWhenProbabilityZero(t *testing.T) {
	g := newTestGenerator(32)
	p := g.GeneratePatient()
	tests := g.GenerateSeries(p, 5, 6, 0.0)
	// With no trend every metric of every later test is a verbatim copy.
	for i := 1; i < len(tests); i++ {
		for _, name := range MetricNames {
			if tests[i].Values[name] != tests[i-1].Values[name] {
				t.Errorf("test %d %s = %v, want copy of %v", i, name, tests[i].Values[name], tests[i-1].Values[name])
			}
		}
	}
}

func TestGenerateSeries_TrendHighForcesBoundary(t *testing.T) {
	_, p, tests := trendingSeries(t, "hemoglobin", 1, 5)
	r := ResolveRanges(p)["hemoglobin"]
	last := tests[len(tests)-1].Values["hemoglobin"]
	if last < r.Max*1.1 {
		t.Errorf("final hemoglobin = %v, want >= %v", last, r.Max*1.1)
	}
}

func TestGenerateSeries_TrendLowForcesBoundary(t *testing.T) {
	_, p, tests := trendingSeries(t, "hemoglobin", -1, 5)
	r := ResolveRanges(p)["hemoglobin"]
	last := tests[len(tests)-1].Values["hemoglobin"]
	if last > r.Min*0.9 {
		t.Errorf("final hemoglobin = %v, want <= %v", last, r.Min*0.9)
	}
}

func TestGenerateSeries_NonTargetContinuity(t *testing.T) {
	_, _, tests := trendingSeries(t, "hemoglobin", 1, 6)
	for i := 1; i < len(tests); i++ {
		for _, name := range MetricNames {
			if name == "hemoglobin" {
				continue
			}
			if tests[i].Values[name] != tests[i-1].Values[name] {
				t.Errorf("test %d %s = %v, want exact copy of %v", i, name, tests[i].Values[name], tests[i-1].Values[name])
			}
		}
	}
}

func TestGenerateSeries_TrendTargetExcludesMinorMetrics(t *testing.T) {
	excluded := map[string]bool{"monocytes": true, "eosinophils": true, "basophils": true}
	for _, name := range trendCandidates {
		if excluded[name] {
			t.Errorf("%s must not be a trend candidate", name)
		}
	}
	if len(trendCandidates) != 10 {
		t.Errorf("trend candidate count = %d, want 10", len(trendCandidates))
	}
}

func TestGenerateSeries_Deterministic(t *testing.T) {
	run := func() []BloodTest {
		g := newTestGenerator(77)
		p := g.GeneratePatient()
		return g.GenerateSeries(p, 5, 6, 0.7)
	}
	a, b := run(), run()
	for i := range a {
		if a[i].TestID != b[i].TestID || a[i].TestDate != b[i].TestDate {
			t.Fatalf("test %d identity diverged", i)
		}
		for _, name := range MetricNames {
			if a[i].Values[name] != b[i].Values[name] {
				t.Fatalf("test %d %s diverged: %v vs %v", i, name, a[i].Values[name], b[i].Values[name])
			}
		}
	}
}

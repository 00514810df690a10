package generator

import "testing"

// flaggedTest returns a minimal BloodTest with the given aggregates; the
// label aggregator only reads IsAbnormal and AbnormalConfidence.
func flaggedTest(abnormal bool, confidence float64) BloodTest {
	return BloodTest{IsAbnormal: abnormal, AbnormalConfidence: confidence}
}

func TestLabelPatient_NormalWhenNothingQualifies(t *testing.T) {
	g := newTestGenerator(41)
	tests := []BloodTest{
		flaggedTest(false, 0),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
	}
	label, confidence := g.LabelPatient(tests, 1.0)
	if label != LabelNormal {
		t.Errorf("label = %s, want NORMAL", label)
	}
	if confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 (no abnormal tests)", confidence)
	}
}

func TestLabelPatient_RatioQualifies(t *testing.T) {
	g := newTestGenerator(42)
	// 2 of 5 abnormal = 0.4 >= 0.3; probability 1.0 removes the gate.
	tests := []BloodTest{
		flaggedTest(true, 0.5),
		flaggedTest(true, 0.75),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
	}
	label, confidence := g.LabelPatient(tests, 1.0)
	if label != LabelAbnormal {
		t.Errorf("label = %s, want ABNORMAL", label)
	}
	if confidence != 0.625 {
		t.Errorf("confidence = %v, want mean over abnormal tests 0.625", confidence)
	}
}

func TestLabelPatient_RatioBelowThresholdDoesNotQualify(t *testing.T) {
	g := newTestGenerator(43)
	// 1 of 5 abnormal = 0.2 < 0.3 and no confidence above 0.8.
	tests := []BloodTest{
		flaggedTest(true, 0.6),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
	}
	label, confidence := g.LabelPatient(tests, 1.0)
	if label != LabelNormal {
		t.Errorf("label = %s, want NORMAL", label)
	}
	if confidence != 1-0.6 {
		t.Errorf("confidence = %v, want 1 - avgConfidence = 0.4", confidence)
	}
}

func TestLabelPatient_SingleHighConfidenceQualifies(t *testing.T) {
	g := newTestGenerator(44)
	// Ratio 0.2 < 0.3 but one test carries confidence > 0.8.
	tests := []BloodTest{
		flaggedTest(true, 0.9),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
		flaggedTest(false, 0),
	}
	label, _ := g.LabelPatient(tests, 1.0)
	if label != LabelAbnormal {
		t.Errorf("label = %s, want ABNORMAL via the high-confidence path", label)
	}
}

func TestLabelPatient_DoubleGateSuppressesQualifiedPatients(t *testing.T) {
	g := newTestGenerator(45)
	tests := []BloodTest{
		flaggedTest(true, 0.9),
		flaggedTest(true, 0.9),
	}
	// Probability 0 keeps the gate closed no matter how abnormal the
	// series is; the label falls back to NORMAL with inverted confidence.
	label, confidence := g.LabelPatient(tests, 0.0)
	if label != LabelNormal {
		t.Errorf("label = %s, want NORMAL when the gate never opens", label)
	}
	if got, want := confidence, 1-0.9; got != want {
		t.Errorf("confidence = %v, want %v", got, want)
	}
}

func TestLabelPatient_GateIsIndependent(t *testing.T) {
	// With probability 0.5, roughly half of qualifying patients keep the
	// NORMAL label: the gate is a real second Bernoulli trial.
	g := newTestGenerator(46)
	tests := []BloodTest{flaggedTest(true, 0.9), flaggedTest(true, 0.9)}
	abnormal := 0
	const runs = 2000
	for i := 0; i < runs; i++ {
		label, _ := g.LabelPatient(tests, 0.5)
		if label == LabelAbnormal {
			abnormal++
		}
	}
	ratio := float64(abnormal) / float64(runs)
	if ratio < 0.4 || ratio > 0.6 {
		t.Errorf("abnormal ratio = %v, want ~0.5", ratio)
	}
}

func TestGeneratePatientData_EndToEnd(t *testing.T) {
	g := newTestGenerator(47)
	pd := g.GeneratePatientData(5, 6, 1.0)

	if len(pd.Tests) != 5 {
		t.Fatalf("test count = %d, want 5", len(pd.Tests))
	}
	if pd.Label != LabelNormal && pd.Label != LabelAbnormal {
		t.Errorf("label = %q", pd.Label)
	}
	if pd.Confidence < 0 || pd.Confidence > 1 {
		t.Errorf("confidence = %v, want [0,1]", pd.Confidence)
	}

	// The stored label must be exactly what LabelPatient computes for the
	// same series and gate outcome: replay with a fresh generator.
	replay := newTestGenerator(47)
	rp := replay.GeneratePatientData(5, 6, 1.0)
	if rp.Label != pd.Label || rp.Confidence != pd.Confidence {
		t.Errorf("replay diverged: %s/%v vs %s/%v", rp.Label, rp.Confidence, pd.Label, pd.Confidence)
	}
}

func TestGeneratePatientData_ForcedTrendEndsAbnormal(t *testing.T) {
	// abnormalProbability 1.0 forces a trend in every series; the last two
	// tests sit 10% past a range boundary, so the final test always flags
	// its target metric.
	g := newTestGenerator(48)
	for i := 0; i < 50; i++ {
		pd := g.GeneratePatientData(5, 6, 1.0)
		last := pd.Tests[len(pd.Tests)-1]
		flagged := 0
		for _, name := range MetricNames {
			if last.Flags[name] {
				flagged++
			}
		}
		if flagged == 0 {
			t.Errorf("patient %s: forced trend left the final test fully in range", pd.Patient.ID)
		}
	}
}

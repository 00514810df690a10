package generator

import (
	"encoding/json"
	"math"
	"testing"
)

// craftTest builds a BloodTest with every metric centered in range, then
// applies the given overrides, recomputing flags and aggregates the way
// GenerateBloodTest does. Used to pin down the flag/confidence rules on
// exact values.
func craftTest(t *testing.T, p Patient, overrides map[string]float64) BloodTest {
	t.Helper()
	ranges := ResolveRanges(p)
	values := make(map[string]float64, len(MetricNames))
	for _, name := range MetricNames {
		r := ranges[name]
		values[name] = (r.Min + r.Max) / 2
	}
	for name, v := range overrides {
		values[name] = v
	}

	flags := make(map[string]bool, len(MetricNames))
	count := 0
	for _, name := range MetricNames {
		r := ranges[name]
		out := values[name] < r.Min || values[name] > r.Max
		flags[name] = out
		if out {
			count++
		}
	}
	return BloodTest{
		TestID:             "T-0000000000",
		PatientID:          p.ID,
		TestDate:           "2025-01-01",
		Values:             values,
		Ranges:             ranges,
		Flags:              flags,
		IsAbnormal:         count >= minAbnormalFlags,
		AbnormalConfidence: abnormalConfidence(values, ranges, flags),
	}
}

func TestGenerateBloodTest_FlagsMatchStoredRanges(t *testing.T) {
	g := newTestGenerator(21)
	p := g.GeneratePatient()
	ranges := ResolveRanges(p)
	for i := 0; i < 200; i++ {
		bt := g.GenerateBloodTest(p, ranges, "2025-01-01", nil)
		for _, name := range MetricNames {
			r := bt.Ranges[name]
			want := bt.Values[name] < r.Min || bt.Values[name] > r.Max
			if bt.Flags[name] != want {
				t.Errorf("%s: flag = %v, value %v against [%v, %v]", name, bt.Flags[name], bt.Values[name], r.Min, r.Max)
			}
		}
	}
}

func TestGenerateBloodTest_AbnormalNeedsTwoFlags(t *testing.T) {
	p := Patient{ID: "P-test0000", Age: 40, Gender: "M"}

	zero := craftTest(t, p, nil)
	if zero.IsAbnormal {
		t.Error("no flags: isAbnormal must be false")
	}

	one := craftTest(t, p, map[string]float64{"mcv": 120})
	if one.IsAbnormal {
		t.Error("one flag: isAbnormal must be false")
	}

	two := craftTest(t, p, map[string]float64{"mcv": 120, "mch": 40})
	if !two.IsAbnormal {
		t.Error("two flags: isAbnormal must be true")
	}
}

func TestGenerateBloodTest_ConfidenceIgnoresNonCoreMetrics(t *testing.T) {
	p := Patient{ID: "P-test0000", Age: 40, Gender: "M"}

	// Three metrics flagged, none among {hemoglobin, wbc, platelets,
	// hematocrit}: the test is abnormal but confidence stays zero.
	bt := craftTest(t, p, map[string]float64{
		"neutrophils": 90,
		"lymphocytes": 55,
		"monocytes":   12,
	})
	if !bt.IsAbnormal {
		t.Fatal("three flagged metrics: isAbnormal must be true")
	}
	if bt.AbnormalConfidence != 0 {
		t.Errorf("abnormalConfidence = %v, want 0 when none of the four core metrics flag", bt.AbnormalConfidence)
	}
}

func TestGenerateBloodTest_ConfidenceDistance(t *testing.T) {
	p := Patient{ID: "P-test0000", Age: 40, Gender: "M"}

	// Male hemoglobin range [13.5, 17.5], width 4. Value 18.5 is 1 above
	// max: distance 0.25, confidence 0.5+0.25 = 0.75.
	bt := craftTest(t, p, map[string]float64{"hemoglobin": 18.5, "mcv": 120})
	if bt.AbnormalConfidence != 0.75 {
		t.Errorf("abnormalConfidence = %v, want 0.75", bt.AbnormalConfidence)
	}

	// Far outside range: capped at 1.0.
	bt = craftTest(t, p, map[string]float64{"hemoglobin": 30})
	if bt.AbnormalConfidence != 1.0 {
		t.Errorf("abnormalConfidence = %v, want cap at 1.0", bt.AbnormalConfidence)
	}

	// Confidence computed even when the test as a whole is not abnormal
	// (only one flag): the two aggregates are decoupled.
	if bt.IsAbnormal {
		t.Error("single flag must not make the test abnormal")
	}
	if bt.AbnormalConfidence == 0 {
		t.Error("confidence must be computed independently of the 2-flag rule")
	}
}

func TestGenerateBloodTest_ConfidenceAveragesFlaggedSubset(t *testing.T) {
	p := Patient{ID: "P-test0000", Age: 40, Gender: "M"}

	// hemoglobin 18.5: 0.75 (see above). wbc range [4.5, 11], width 6.5;
	// value 12.3 is 1.3 above: 0.5 + 0.2 = 0.7. Mean = 0.725, rounds 0.73.
	bt := craftTest(t, p, map[string]float64{"hemoglobin": 18.5, "wbc": 12.3})
	if bt.AbnormalConfidence != 0.73 {
		t.Errorf("abnormalConfidence = %v, want 0.73", bt.AbnormalConfidence)
	}
}

func TestGenerateBloodTest_SeedsUsedVerbatim(t *testing.T) {
	g := newTestGenerator(22)
	p := g.GeneratePatient()
	ranges := ResolveRanges(p)
	seeds := map[string]float64{"hemoglobin": 14.37, "platelets": 222}
	bt := g.GenerateBloodTest(p, ranges, "2025-01-01", seeds)
	if bt.Values["hemoglobin"] != 14.37 {
		t.Errorf("seeded hemoglobin = %v, want 14.37", bt.Values["hemoglobin"])
	}
	if bt.Values["platelets"] != 222 {
		t.Errorf("seeded platelets = %v, want 222", bt.Values["platelets"])
	}
}

func TestGenerateBloodTest_Rounding(t *testing.T) {
	g := newTestGenerator(23)
	p := g.GeneratePatient()
	ranges := ResolveRanges(p)
	for i := 0; i < 100; i++ {
		bt := g.GenerateBloodTest(p, ranges, "2025-01-01", nil)
		if pl := bt.Values["platelets"]; pl != math.Trunc(pl) {
			t.Errorf("platelets = %v, want integer", pl)
		}
		for _, name := range MetricNames {
			v := bt.Values[name]
			if Round(v, 2) != v {
				t.Errorf("%s = %v, want at most 2 decimals", name, v)
			}
		}
	}
}

func TestGenerateBloodTest_DrawsStayWithinPaddedInterval(t *testing.T) {
	g := newTestGenerator(24)
	p := Patient{ID: "P-test0000", Age: 40, Gender: "M"}
	ranges := ResolveRanges(p)
	for i := 0; i < 500; i++ {
		bt := g.GenerateBloodTest(p, ranges, "2025-01-01", nil)
		for _, name := range MetricNames {
			r := ranges[name]
			pad := metricPads[name]
			v := bt.Values[name]
			if v < r.Min-pad.Below-0.5 || v > r.Max+pad.Above+0.5 {
				t.Errorf("%s = %v, outside padded interval [%v, %v]", name, v, r.Min-pad.Below, r.Max+pad.Above)
			}
		}
	}
}

func TestBloodTest_JSONRoundTrip(t *testing.T) {
	g := newTestGenerator(25)
	p := g.GeneratePatient()
	bt := g.GenerateBloodTest(p, ResolveRanges(p), "2025-03-04", nil)

	data, err := json.Marshal(bt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Wire shape is flat: metric values at the top level.
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	for _, key := range []string{"testId", "patientId", "testDate", "hemoglobin", "basophils", "referenceRanges", "abnormalFlags"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("wire object missing %q", key)
		}
	}
	if _, ok := flat["abnormalFlags"].(map[string]interface{})["isAbnormal"]; !ok {
		t.Error("abnormalFlags missing isAbnormal")
	}

	var back BloodTest
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.TestID != bt.TestID || back.TestDate != bt.TestDate {
		t.Errorf("identity fields lost: %+v", back)
	}
	if back.IsAbnormal != bt.IsAbnormal || back.AbnormalConfidence != bt.AbnormalConfidence {
		t.Errorf("derived fields lost: %+v", back)
	}
	for _, name := range MetricNames {
		if back.Values[name] != bt.Values[name] {
			t.Errorf("%s: %v != %v", name, back.Values[name], bt.Values[name])
		}
	}
}

// Package features derives model input vectors from patient blood test
// series. Extraction works on the most recent test, with trend and
// volatility features computed across the full series.
package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/followup/followup/internal/generator"
)

// Metrics are the test metrics used for feature extraction. This is a
// subset of the full panel; the remaining metrics carry little signal
// on their own and are folded in through derived ratios instead.
var Metrics = []string{
	"hemoglobin",
	"wbc",
	"platelets",
	"neutrophils",
	"lymphocytes",
	"rbc",
	"mcv",
	"mch",
}

// zeroGuard replaces a zero denominator in ratio features.
const zeroGuard = 0.001

// Set holds the extracted feature vector for a single patient along
// with the latest test it was derived from.
type Set struct {
	PatientID string
	Latest    generator.BloodTest
	Values    map[string]float64
}

// Extract builds the feature vector for a patient from their test
// series. Tests are sorted by date and the most recent one provides the
// point-in-time features; the whole series provides trends. At least
// one test is required.
func Extract(patientID string, age int, gender string, tests []generator.BloodTest) (*Set, error) {
	if len(tests) == 0 {
		return nil, fmt.Errorf("features: patient %s has no tests", patientID)
	}

	sorted := make([]generator.BloodTest, len(tests))
	copy(sorted, tests)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TestDate < sorted[j].TestDate
	})
	latest := sorted[len(sorted)-1]

	v := map[string]float64{
		"age": float64(age),
	}
	if gender == "M" {
		v["gender_male"] = 1
	} else {
		v["gender_male"] = 0
	}

	addRangeFeatures(v, latest)
	addDerivedFeatures(v, latest)
	addTrendFeatures(v, sorted)

	return &Set{PatientID: patientID, Latest: latest, Values: v}, nil
}

// addRangeFeatures adds, for each metric with a known reference range,
// the raw value, the deviation from the range midpoint, and the
// distance outside the range, both expressed as a percentage of the
// midpoint. The out-of-range distance is zero for in-range values.
func addRangeFeatures(v map[string]float64, t generator.BloodTest) {
	for _, metric := range Metrics {
		value, ok := t.Values[metric]
		if !ok {
			continue
		}
		v[metric] = value

		r, ok := t.Ranges[metric]
		if !ok {
			continue
		}
		midpoint := (r.Min + r.Max) / 2
		if midpoint == 0 {
			midpoint = zeroGuard
		}
		v[metric+"_dev"] = (value - midpoint) / midpoint * 100
		v[metric+"_out"] = math.Max(0, math.Max(r.Min-value, value-r.Max)) / midpoint * 100
	}
}

// addDerivedFeatures adds ratio features combining multiple metrics and
// the count of out-of-range metrics.
func addDerivedFeatures(v map[string]float64, t generator.BloodTest) {
	if neut, ok := t.Values["neutrophils"]; ok {
		if lymph, ok := t.Values["lymphocytes"]; ok {
			if lymph == 0 {
				lymph = zeroGuard
			}
			v["nlr"] = neut / lymph
		}
	}
	if rbc, ok := t.Values["rbc"]; ok {
		if plt, ok := t.Values["platelets"]; ok {
			if plt == 0 {
				plt = zeroGuard
			}
			v["rpr"] = rbc / plt * 1000
		}
	}
	if mch, ok := t.Values["mch"]; ok {
		if mcv, ok := t.Values["mcv"]; ok {
			if mcv == 0 {
				mcv = zeroGuard
			}
			v["mchc_ratio"] = mch / mcv * 100
		}
	}

	abnormal := 0.0
	for _, metric := range Metrics {
		if v[metric+"_out"] > 0 {
			abnormal++
		}
	}
	v["abnormal_count"] = abnormal
}

// addTrendFeatures adds a slope and volatility feature per metric,
// computed over the date-sorted series. Both are zero when the series
// has fewer than two tests.
func addTrendFeatures(v map[string]float64, sorted []generator.BloodTest) {
	for _, metric := range Metrics {
		v[metric+"_trend"] = 0
		v[metric+"_volatility"] = 0
	}
	if len(sorted) < 2 {
		return
	}

	for _, metric := range Metrics {
		values := make([]float64, 0, len(sorted))
		for _, t := range sorted {
			if val, ok := t.Values[metric]; ok {
				values = append(values, val)
			}
		}
		if len(values) < 2 {
			continue
		}
		v[metric+"_trend"] = (values[len(values)-1] - values[0]) / float64(len(values))
		v[metric+"_volatility"] = stddev(values)
	}
}

// stddev returns the population standard deviation.
func stddev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

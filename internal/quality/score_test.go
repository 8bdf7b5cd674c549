package quality

import (
	"math"
	"reflect"
	"testing"
)

func TestOverallQuality(t *testing.T) {
	tests := []struct {
		name       string
		sharpness  float64
		brightness float64
		contrast   float64
		uniqueness float64
		expected   float64
	}{
		// Brightness 0.5 centers at exactly 1, so all components max out.
		{"perfect", 1.0, 0.5, 1.0, 1.0, 1.0},
		{"all zero", 0.0, 0.0, 0.0, 0.0, 0.0},
		{"extreme brightness kills its term", 1.0, 1.0, 1.0, 1.0, 0.80},
		{"dark extreme", 1.0, 0.0, 1.0, 1.0, 0.80},
		{"only uniqueness", 0.0, 0.0, 0.0, 1.0, 0.25},
		{"only sharpness", 1.0, 0.0, 0.0, 0.0, 0.35},
		{"brightness 0.75 centers at 0.5", 0.0, 0.75, 0.0, 0.0, 0.10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := OverallQuality(tc.sharpness, tc.brightness, tc.contrast, tc.uniqueness)
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("OverallQuality = %f, want %f", got, tc.expected)
			}
		})
	}
}

func TestOverallQuality_InRange(t *testing.T) {
	steps := []float64{0, 0.25, 0.5, 0.75, 1}
	for _, s := range steps {
		for _, b := range steps {
			for _, c := range steps {
				for _, u := range steps {
					got := OverallQuality(s, b, c, u)
					if got < 0 || got > 1 {
						t.Fatalf("OverallQuality(%f,%f,%f,%f) = %f out of [0,1]", s, b, c, u, got)
					}
				}
			}
		}
	}
}

func TestDetectIssues(t *testing.T) {
	tests := []struct {
		name       string
		sharpness  float64
		brightness float64
		contrast   float64
		uniqueness float64
		expected   []string
	}{
		{"clean image", 0.8, 0.5, 0.6, 0.9, nil},
		{"blurry", 0.1, 0.5, 0.6, 0.9, []string{IssueBlur}},
		{"dark", 0.8, 0.1, 0.6, 0.9, []string{IssueLowBrightness}},
		{"overexposed", 0.8, 0.9, 0.6, 0.9, []string{IssueHighBrightness}},
		{"flat", 0.8, 0.5, 0.1, 0.9, []string{IssueLowContrast}},
		{"duplicate", 0.8, 0.5, 0.6, 0.05, []string{IssueDuplicate}},
		{
			"everything wrong",
			0.0, 0.0, 0.0, 0.0,
			[]string{IssueBlur, IssueLowBrightness, IssueLowContrast, IssueDuplicate},
		},
		{"exactly at thresholds", 0.15, 0.15, 0.15, 0.10, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectIssues(tc.sharpness, tc.brightness, tc.contrast, tc.uniqueness)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("DetectIssues = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestDetectIssues_BrightnessExclusive(t *testing.T) {
	// Low and high brightness can never appear together.
	for b := 0.0; b <= 1.0; b += 0.05 {
		issues := DetectIssues(1, b, 1, 1)
		low := contains(issues, IssueLowBrightness)
		high := contains(issues, IssueHighBrightness)
		if low && high {
			t.Fatalf("brightness %f tagged both low and high", b)
		}
	}
}

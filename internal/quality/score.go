package quality

// Issue tags attached to a record when a score crosses its threshold.
const (
	IssueBlur           = "blur"
	IssueLowBrightness  = "low_brightness"
	IssueHighBrightness = "high_brightness"
	IssueLowContrast    = "low_contrast"
	IssueDuplicate      = "duplicate"
)

// Detection thresholds. These are fixed by the scoring model, not tunable.
const (
	blurThreshold           = 0.15
	lowBrightnessThreshold  = 0.15
	highBrightnessThreshold = 0.85
	lowContrastThreshold    = 0.15
	duplicateThreshold      = 0.10
)

// Weights of the composite quality score.
const (
	sharpnessWeight  = 0.35
	brightnessWeight = 0.20
	contrastWeight   = 0.20
	uniquenessWeight = 0.25
)

// OverallQuality combines the four scores into a single composite value.
// Brightness is re-centered so that 0.5 scores best and either extreme
// scores zero; the other terms contribute linearly.
func OverallQuality(sharpness, brightness, contrast, uniqueness float64) float64 {
	brightnessCentered := 1 - 2*abs(brightness-0.5)
	score := sharpnessWeight*sharpness +
		brightnessWeight*brightnessCentered +
		contrastWeight*contrast +
		uniquenessWeight*uniqueness
	return clamp01(score)
}

// DetectIssues returns the ordered, deduplicated issue tags implied by the
// four scores. Low and high brightness are mutually exclusive.
func DetectIssues(sharpness, brightness, contrast, uniqueness float64) []string {
	var issues []string
	if sharpness < blurThreshold {
		issues = append(issues, IssueBlur)
	}
	if brightness < lowBrightnessThreshold {
		issues = append(issues, IssueLowBrightness)
	} else if brightness > highBrightnessThreshold {
		issues = append(issues, IssueHighBrightness)
	}
	if contrast < lowContrastThreshold {
		issues = append(issues, IssueLowContrast)
	}
	if uniqueness < duplicateThreshold {
		issues = append(issues, IssueDuplicate)
	}
	return issues
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

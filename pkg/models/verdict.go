package models

import (
	"fmt"
	"math"
)

// ResultStatus is the closed set of verdict labels. Voice and deepfake use
// real/fake/suspicious; phishing uses safe/suspicious/fake.
type ResultStatus string

const (
	StatusReal       ResultStatus = "real"
	StatusFake       ResultStatus = "fake"
	StatusSuspicious ResultStatus = "suspicious"
	StatusSafe       ResultStatus = "safe"
)

// Valid reports whether s is a known status.
func (s ResultStatus) Valid() bool {
	switch s {
	case StatusReal, StatusFake, StatusSuspicious, StatusSafe:
		return true
	}
	return false
}

// ParseResultStatus converts a raw string into a ResultStatus.
func ParseResultStatus(s string) (ResultStatus, error) {
	st := ResultStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown result status %q", s)
	}
	return st, nil
}

// Threshold bounds shared by every flow.
const (
	ScoreMin = 0
	ScoreMax = 100

	lowerThreshold = 30
	upperThreshold = 70
)

// Verdict is the Result Contract every detection flow must produce.
type Verdict struct {
	Score    int          `json:"score"`
	Status   ResultStatus `json:"status"`
	Factors  []string     `json:"factors"`
	Degraded bool         `json:"degraded,omitempty"`
}

// ClampScore bounds score to [0,100].
func ClampScore(score int) int {
	if score < ScoreMin {
		return ScoreMin
	}
	if score > ScoreMax {
		return ScoreMax
	}
	return score
}

// ClampScoreFloat bounds v to [0,100] before rounding, so out-of-range
// values never overflow the int conversion. NaN maps to ScoreMin.
func ClampScoreFloat(v float64) int {
	if math.IsNaN(v) {
		return ScoreMin
	}
	return int(math.Round(math.Max(ScoreMin, math.Min(ScoreMax, v))))
}

// ValidForFlow reports whether s belongs to flow's status set.
func ValidForFlow(flow DetectionType, s ResultStatus) bool {
	switch s {
	case StatusFake, StatusSuspicious:
		return true
	case StatusSafe:
		return flow == DetectionPhishing
	case StatusReal:
		return flow == DetectionVoice || flow == DetectionDeepfake
	default:
		return false
	}
}

// StatusForScore derives the status for a score using the fixed thresholds.
//
// Phishing scores measure threat: >70 fake, >30 suspicious, else safe.
// Voice and deepfake scores measure authenticity: <30 fake, <=70 suspicious,
// else real.
func StatusForScore(flow DetectionType, score int) ResultStatus {
	score = ClampScore(score)
	if flow == DetectionPhishing {
		switch {
		case score > upperThreshold:
			return StatusFake
		case score > lowerThreshold:
			return StatusSuspicious
		default:
			return StatusSafe
		}
	}
	switch {
	case score < lowerThreshold:
		return StatusFake
	case score <= upperThreshold:
		return StatusSuspicious
	default:
		return StatusReal
	}
}

// NeutralScore is the score used for degraded fallback verdicts.
const NeutralScore = 50

// FallbackVerdict returns the neutral, degraded verdict used when a delegated
// backend fails.
func FallbackVerdict(factors ...string) Verdict {
	return Verdict{
		Score:    NeutralScore,
		Status:   StatusSuspicious,
		Factors:  factors,
		Degraded: true,
	}
}

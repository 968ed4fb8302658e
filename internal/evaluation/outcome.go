package evaluation

import (
	"fmt"
	"math"
)

// Check names as persisted on result rows.
const (
	CheckLicense      = "MIT License"
	CheckReadme       = "README Quality"
	CheckCode         = "Code Quality"
	CheckRepoAccess   = "Repository Access"
	CheckReachability = "Pages Accessibility"
	CheckDynamic      = "Dynamic Functionality"
)

// NeutralScore is recorded when a check cannot reach a verdict on its own.
const NeutralScore = 0.5

// Outcome is the verdict of one check.
type Outcome struct {
	Name   string
	Score  float64
	Reason string
	Logs   string
}

// Passed reports a perfect score.
func (o Outcome) Passed() bool {
	return o.Score >= 1.0
}

// Clamp bounds a score to [0, 1] and trims float noise.
func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return math.Round(score*1000) / 1000
}

// SafeRun executes fn and converts a panic into a zero-score outcome for name.
func SafeRun(name string, fn func() Outcome) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{
				Name:   name,
				Score:  0,
				Reason: "check failed unexpectedly",
				Logs:   fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	outcome = fn()
	outcome.Name = name
	outcome.Score = Clamp(outcome.Score)
	return outcome
}

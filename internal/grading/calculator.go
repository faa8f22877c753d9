// Package grading derives final scores and letter grades from weighted components.
//
// Everything here is pure: callers recompute the result whenever the component
// list changes instead of storing it alongside its inputs.
package grading

import (
	"fmt"
	"math"

	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

// Score bounds for a single component.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// ScoredComponent is one graded item contributing to a final grade.
type ScoredComponent struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// NewScoredComponent validates the score and weight before returning a component.
func NewScoredComponent(name string, score, weight float64) (ScoredComponent, error) {
	c := ScoredComponent{Name: name, Score: score, Weight: weight}
	if err := c.Validate(); err != nil {
		return ScoredComponent{}, err
	}
	return c, nil
}

// Validate reports a validation error naming the first offending field.
func (c ScoredComponent) Validate() error {
	if math.IsNaN(c.Score) || c.Score < MinScore || c.Score > MaxScore {
		return appErrors.Validation("score", fmt.Sprintf("score must be within [0, 100], got %v", c.Score))
	}
	if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight < 0 {
		return appErrors.Validation("weight", fmt.Sprintf("weight must be non-negative, got %v", c.Weight))
	}
	return nil
}

// Result holds the derived grade. Both fields are nil when the grade is undefined.
type Result struct {
	FinalScore  *float64 `json:"final_score"`
	LetterGrade *string  `json:"letter_grade"`
}

// Defined reports whether a final score could be computed.
func (r Result) Defined() bool {
	return r.FinalScore != nil
}

// ComputeFinalGrade returns the weighted average of the components and its letter.
// An empty list or a zero total weight yields an undefined result rather than an error.
// Weights are scaled by the largest one first so very large weights cannot overflow the sums.
func ComputeFinalGrade(components []ScoredComponent) Result {
	var maxWeight float64
	for _, c := range components {
		if c.Weight > maxWeight {
			maxWeight = c.Weight
		}
	}
	if maxWeight == 0 || math.IsInf(maxWeight, 0) {
		return Result{}
	}
	var totalWeight, weightedSum float64
	for _, c := range components {
		w := c.Weight / maxWeight
		totalWeight += w
		weightedSum += c.Score * w
	}
	final := weightedSum / totalWeight
	if math.IsNaN(final) || math.IsInf(final, 0) {
		return Result{}
	}
	letter := LetterGradeOf(final)
	return Result{FinalScore: &final, LetterGrade: &letter}
}

type threshold struct {
	min    float64
	letter string
}

// thresholds must stay sorted by descending lower bound.
var thresholds = []threshold{
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{67, "D+"},
	{60, "D"},
}

// LetterF is assigned below the lowest threshold.
const LetterF = "F"

// LetterGradeOf maps an unrounded score to the letter of the greatest lower bound not above it.
func LetterGradeOf(score float64) string {
	for _, t := range thresholds {
		if score >= t.min {
			return t.letter
		}
	}
	return LetterF
}

// Letters returns the letter symbols ordered from best to worst.
func Letters() []string {
	letters := make([]string, 0, len(thresholds)+1)
	for _, t := range thresholds {
		letters = append(letters, t.letter)
	}
	return append(letters, LetterF)
}

// RoundPercent rounds half away from zero for integer-percent projections.
func RoundPercent(score float64) int {
	return int(math.Round(score))
}

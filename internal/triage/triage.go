// Package triage implements the clinical risk rule engine for the cardiology
// call flow.
//
// Scoring is a transparent weighted-rule system rather than a statistical
// model: identical inputs always produce identical assessments, which the
// conversation engine and its tests depend on.
package triage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medagg/cardiovoice/internal/models"
)

// Score thresholds shared by both assessments.
const (
	highRiskThreshold   = 4
	mediumRiskThreshold = 2
)

// ChestPainInput holds the typed inputs for a chest pain assessment.
type ChestPainInput struct {
	CallID    string `json:"call_id,omitempty"`
	Location  string `json:"location"`
	PainType  string `json:"pain_type"`
	Duration  string `json:"duration"`
	Triggers  string `json:"triggers,omitempty"`
	Radiation string `json:"radiation,omitempty"`
}

// BreathingInput holds the typed inputs for a breathing assessment.
type BreathingInput struct {
	CallID             string `json:"call_id,omitempty"`
	Severity           string `json:"severity"`
	Timing             string `json:"timing"`
	Duration           string `json:"duration,omitempty"`
	AssociatedSymptoms string `json:"associated_symptoms,omitempty"`
}

// Assessor scores symptom reports into risk assessments.
type Assessor struct{}

// NewAssessor creates a risk assessor.
func NewAssessor() *Assessor {
	return &Assessor{}
}

// AssessChestPain scores a chest pain report. Empty or unrecognized fields
// contribute zero rather than erroring, so garbage input yields the weakest
// signal and the conversation keeps progressing.
func (a *Assessor) AssessChestPain(in ChestPainInput) models.RiskAssessment {
	score := 0
	if mentionsAny(in.PainType, "sharp", "stabbing") {
		score += 2
	}
	if mentionsAny(in.PainType, "pressure", "tightness") {
		score++
	}
	if mentionsAny(in.Radiation, "arm", "neck", "jaw") {
		score += 3
	}
	if mentionsAny(in.Triggers, "activity", "exercise") {
		score++
	}
	if mentionsAny(in.Duration, "constant", "hours") {
		score++
	}

	level := levelFor(score)
	assessment := models.RiskAssessment{
		ID:     uuid.NewString(),
		CallID: in.CallID,
		Type:   models.AssessmentChestPain,
		Inputs: map[string]string{
			"location":  in.Location,
			"pain_type": in.PainType,
			"duration":  in.Duration,
			"triggers":  in.Triggers,
			"radiation": in.Radiation,
		},
		RiskScore:      score,
		RiskLevel:      level,
		Recommendation: chestPainRecommendation(level, in),
		Priority:       priorityFor(level),
		CreatedAt:      time.Now().UTC(),
	}

	slog.Info("Assessor.AssessChestPain: scored report",
		"callID", in.CallID, "score", score, "riskLevel", level, "priority", assessment.Priority)
	return assessment
}

// AssessBreathing scores a shortness-of-breath report with the same threshold
// bands as chest pain.
func (a *Assessor) AssessBreathing(in BreathingInput) models.RiskAssessment {
	score := 0
	switch strings.ToLower(strings.TrimSpace(in.Severity)) {
	case "severe":
		score += 3
	case "moderate":
		score++
	}
	if mentionsAny(in.Timing, "rest", "lying") {
		score += 2
	}
	if mentionsAny(in.AssociatedSymptoms, "swelling", "edema") {
		score += 2
	}
	if mentionsAny(in.AssociatedSymptoms, "dizziness", "fainting") {
		score++
	}

	level := levelFor(score)
	assessment := models.RiskAssessment{
		ID:     uuid.NewString(),
		CallID: in.CallID,
		Type:   models.AssessmentBreathing,
		Inputs: map[string]string{
			"severity":            in.Severity,
			"timing":              in.Timing,
			"duration":            in.Duration,
			"associated_symptoms": in.AssociatedSymptoms,
		},
		RiskScore:      score,
		RiskLevel:      level,
		Recommendation: breathingRecommendation(level, in),
		Priority:       priorityFor(level),
		CreatedAt:      time.Now().UTC(),
	}

	slog.Info("Assessor.AssessBreathing: scored report",
		"callID", in.CallID, "score", score, "riskLevel", level, "priority", assessment.Priority)
	return assessment
}

func levelFor(score int) models.RiskLevel {
	switch {
	case score >= highRiskThreshold:
		return models.RiskHigh
	case score >= mediumRiskThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func priorityFor(level models.RiskLevel) models.Priority {
	switch level {
	case models.RiskHigh:
		return models.PriorityEmergency
	case models.RiskMedium:
		return models.PriorityUrgent
	default:
		return models.PriorityRoutine
	}
}

func chestPainRecommendation(level models.RiskLevel, in ChestPainInput) string {
	switch level {
	case models.RiskHigh:
		return fmt.Sprintf("URGENT: Based on your chest pain symptoms (%s pain in %s with %s), this requires immediate medical attention. Please call 108 or go to the nearest emergency room immediately.",
			in.PainType, in.Location, in.Radiation)
	case models.RiskMedium:
		return fmt.Sprintf("Based on your chest pain symptoms (%s pain in %s lasting %s), I recommend scheduling an urgent cardiology consultation within 24-48 hours.",
			in.PainType, in.Location, in.Duration)
	default:
		return fmt.Sprintf("Based on your chest pain symptoms (%s pain in %s lasting %s), I recommend scheduling a routine cardiology consultation for further evaluation.",
			in.PainType, in.Location, in.Duration)
	}
}

func breathingRecommendation(level models.RiskLevel, in BreathingInput) string {
	switch level {
	case models.RiskHigh:
		return fmt.Sprintf("URGENT: Severe breathing difficulty %s requires immediate medical attention. Please call 108 or go to the nearest emergency room immediately.", in.Timing)
	case models.RiskMedium:
		return fmt.Sprintf("Based on your breathing assessment (%s difficulty %s), I recommend scheduling an urgent pulmonary/cardiology consultation within 24-48 hours.", in.Severity, in.Timing)
	default:
		return fmt.Sprintf("Based on your breathing assessment (%s difficulty %s), I recommend scheduling a routine consultation for pulmonary evaluation.", in.Severity, in.Timing)
	}
}

// mentionsAny reports whether any keyword appears in the field,
// case-insensitively. Empty fields never match.
func mentionsAny(field string, keywords ...string) bool {
	normalized := strings.ToLower(field)
	if strings.TrimSpace(normalized) == "" {
		return false
	}
	for _, keyword := range keywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

package triage

import (
	"strings"
	"testing"

	"github.com/medagg/cardiovoice/internal/models"
)

func TestAssessChestPain(t *testing.T) {
	a := NewAssessor()

	cases := []struct {
		name         string
		in           ChestPainInput
		wantScore    int
		wantLevel    models.RiskLevel
		wantPriority models.Priority
	}{
		{
			name: "sharp radiating exertional constant",
			in: ChestPainInput{
				CallID:    "c1",
				Location:  "chest",
				PainType:  "sharp",
				Duration:  "constant",
				Triggers:  "exercise",
				Radiation: "jaw",
			},
			wantScore:    7,
			wantLevel:    models.RiskHigh,
			wantPriority: models.PriorityEmergency,
		},
		{
			name: "pressure only",
			in: ChestPainInput{
				Location: "chest",
				PainType: "pressure",
				Duration: "a few minutes",
			},
			wantScore:    1,
			wantLevel:    models.RiskLow,
			wantPriority: models.PriorityRoutine,
		},
		{
			name: "pressure for hours",
			in: ChestPainInput{
				Location: "center of chest",
				PainType: "tightness",
				Duration: "several hours",
			},
			wantScore:    2,
			wantLevel:    models.RiskMedium,
			wantPriority: models.PriorityUrgent,
		},
		{
			name:         "empty fields contribute nothing",
			in:           ChestPainInput{Location: "chest"},
			wantScore:    0,
			wantLevel:    models.RiskLow,
			wantPriority: models.PriorityRoutine,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := a.AssessChestPain(tc.in)
			if got.RiskScore != tc.wantScore {
				t.Errorf("score = %d, want %d", got.RiskScore, tc.wantScore)
			}
			if got.RiskLevel != tc.wantLevel {
				t.Errorf("level = %s, want %s", got.RiskLevel, tc.wantLevel)
			}
			if got.Priority != tc.wantPriority {
				t.Errorf("priority = %s, want %s", got.Priority, tc.wantPriority)
			}
			if got.Type != models.AssessmentChestPain {
				t.Errorf("type = %s, want %s", got.Type, models.AssessmentChestPain)
			}
			if got.ID == "" {
				t.Error("assessment id must be set")
			}
			if got.Recommendation == "" {
				t.Error("recommendation must not be empty")
			}
		})
	}
}

func TestAssessChestPainHighRecommendationUrgent(t *testing.T) {
	a := NewAssessor()
	got := a.AssessChestPain(ChestPainInput{PainType: "sharp", Location: "chest", Radiation: "left arm"})
	if !strings.HasPrefix(got.Recommendation, "URGENT:") {
		t.Errorf("high risk recommendation should start with URGENT:, got %q", got.Recommendation)
	}
	if !strings.Contains(got.Recommendation, "108") {
		t.Errorf("high risk recommendation should mention 108, got %q", got.Recommendation)
	}
}

func TestAssessBreathing(t *testing.T) {
	a := NewAssessor()

	cases := []struct {
		name      string
		in        BreathingInput
		wantScore int
		wantLevel models.RiskLevel
	}{
		{
			name:      "mild occasional",
			in:        BreathingInput{Severity: "mild", Timing: "during the day"},
			wantScore: 0,
			wantLevel: models.RiskLow,
		},
		{
			name:      "severe at rest with swelling",
			in:        BreathingInput{Severity: "severe", Timing: "at rest", AssociatedSymptoms: "swelling in legs"},
			wantScore: 7,
			wantLevel: models.RiskHigh,
		},
		{
			name:      "moderate when lying down",
			in:        BreathingInput{Severity: "moderate", Timing: "lying down"},
			wantScore: 3,
			wantLevel: models.RiskMedium,
		},
		{
			name:      "dizziness only",
			in:        BreathingInput{Severity: "unknown", AssociatedSymptoms: "dizziness"},
			wantScore: 1,
			wantLevel: models.RiskLow,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := a.AssessBreathing(tc.in)
			if got.RiskScore != tc.wantScore {
				t.Errorf("score = %d, want %d", got.RiskScore, tc.wantScore)
			}
			if got.RiskLevel != tc.wantLevel {
				t.Errorf("level = %s, want %s", got.RiskLevel, tc.wantLevel)
			}
			if got.Type != models.AssessmentBreathing {
				t.Errorf("type = %s, want %s", got.Type, models.AssessmentBreathing)
			}
		})
	}
}

func TestAssessmentDeterministicScores(t *testing.T) {
	a := NewAssessor()
	in := ChestPainInput{PainType: "sharp pressure", Location: "chest", Duration: "hours", Radiation: "neck"}
	first := a.AssessChestPain(in)
	for i := 0; i < 5; i++ {
		got := a.AssessChestPain(in)
		if got.RiskScore != first.RiskScore || got.RiskLevel != first.RiskLevel || got.Recommendation != first.Recommendation {
			t.Fatalf("assessment changed between runs: %+v vs %+v", first, got)
		}
	}
}

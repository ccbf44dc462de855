package i18n

import (
	"strings"
	"testing"

	"github.com/medagg/cardiovoice/internal/models"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("failed to build localizer: %v", err)
	}
	got := l.Render(KeyGreeting, models.LanguageEnglish, Values{
		"name":             "Asha",
		"medical_category": "cardiology",
		"phone_last4":      "3210",
	})
	if !strings.Contains(got, "Asha") || !strings.Contains(got, "cardiology") || !strings.Contains(got, "3210") {
		t.Errorf("greeting missing substitutions: %q", got)
	}
	if strings.Contains(got, "{") {
		t.Errorf("greeting should have no unresolved placeholders: %q", got)
	}
}

func TestRenderPure(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("failed to build localizer: %v", err)
	}
	values := Values{"question": "How long?"}
	first := l.Render(KeySymptomAck, models.LanguageTamil, values)
	for i := 0; i < 10; i++ {
		if got := l.Render(KeySymptomAck, models.LanguageTamil, values); got != first {
			t.Fatalf("render changed between identical calls: %q vs %q", first, got)
		}
	}
}

func TestRenderUnknownLanguageFallsBackToEnglish(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("failed to build localizer: %v", err)
	}
	english := l.Render(KeyEmergencyMessage, models.LanguageEnglish, nil)
	got := l.Render(KeyEmergencyMessage, models.Language("german"), nil)
	if got != english {
		t.Errorf("unknown language should render the english template, got %q", got)
	}
}

func TestRenderUnknownKeyFallsBack(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("failed to build localizer: %v", err)
	}
	got := l.Render("nonexistent_key", models.LanguageEnglish, nil)
	want := l.Render(KeyDefault, models.LanguageEnglish, nil)
	if got != want {
		t.Errorf("unknown key should render the default template, got %q", got)
	}
}

func TestRenderLocalizedTables(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("failed to build localizer: %v", err)
	}
	tamil := l.Render(KeyEmergencyMessage, models.LanguageTamil, nil)
	hindi := l.Render(KeyEmergencyMessage, models.LanguageHindi, nil)
	english := l.Render(KeyEmergencyMessage, models.LanguageEnglish, nil)
	if tamil == english || hindi == english || tamil == hindi {
		t.Error("each language should have its own emergency template")
	}
	if !strings.Contains(tamil, "108") || !strings.Contains(hindi, "108") {
		t.Error("all emergency templates must mention 108")
	}
}

func TestUrgencyAndRecommendation(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("failed to build localizer: %v", err)
	}
	if got := l.Urgency(models.RiskMedium, models.LanguageEnglish); got != "medium" {
		t.Errorf("Urgency(medium, english) = %q", got)
	}
	if got := l.Urgency(models.RiskHigh, models.LanguageHindi); got != "उच्च" {
		t.Errorf("Urgency(high, hindi) = %q", got)
	}
	if got := l.Recommendation("cardiology", models.LanguageEnglish); !strings.Contains(got, "cardiologist") {
		t.Errorf("Recommendation(cardiology, english) = %q", got)
	}
}

func TestSymptomQuestions(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("failed to build localizer: %v", err)
	}
	q1 := l.SymptomQuestion(1, models.LanguageEnglish)
	q2 := l.SymptomQuestion(2, models.LanguageEnglish)
	q3 := l.SymptomQuestion(3, models.LanguageEnglish)
	if !strings.Contains(q1, "How long") {
		t.Errorf("question 1 = %q", q1)
	}
	if !strings.Contains(q2, "1-10") {
		t.Errorf("question 2 = %q", q2)
	}
	if !strings.Contains(q3, "medications") {
		t.Errorf("question 3 = %q", q3)
	}
}

func TestNewFromFileMissing(t *testing.T) {
	if _, err := NewFromFile("/nonexistent/templates.json"); err == nil {
		t.Error("expected error for missing template file")
	}
}

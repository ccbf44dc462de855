package classify

import (
	"testing"

	"github.com/medagg/cardiovoice/internal/models"
)

func TestClassify(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}

	cases := []struct {
		name     string
		text     string
		language models.Language
		want     models.ClassificationKind
	}{
		{"affirmation", "yes that's correct", models.LanguageEnglish, models.ClassificationAffirmation},
		{"negation", "no, nothing else", models.LanguageEnglish, models.ClassificationNegation},
		{"question", "what does this medication do", models.LanguageEnglish, models.ClassificationQuestion},
		{"emergency breathe", "I can't breathe", models.LanguageEnglish, models.ClassificationEmergencyMatch},
		{"emergency heart attack", "I think I am having a heart attack", models.LanguageEnglish, models.ClassificationEmergencyMatch},
		{"emergency beats affirmation", "yes I have severe chest pain", models.LanguageEnglish, models.ClassificationEmergencyMatch},
		{"plain content", "the discomfort started last week", models.LanguageEnglish, models.ClassificationContent},
		{"tamil affirmation", "ஆம் சரிதான்", models.LanguageTamil, models.ClassificationAffirmation},
		{"tamil emergency", "எனக்கு மாரடைப்பு வருகிறது", models.LanguageTamil, models.ClassificationEmergencyMatch},
		{"hindi emergency", "मुझे हार्ट अटैक आ रहा है", models.LanguageHindi, models.ClassificationEmergencyMatch},
		{"hindi negation", "नहीं", models.LanguageHindi, models.ClassificationNegation},
		{"unknown language falls back to english", "yes of course", models.Language("german"), models.ClassificationAffirmation},
		{"mixed case", "YES I Can Hear You", models.LanguageEnglish, models.ClassificationAffirmation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.text, tc.language)
			if got.Kind != tc.want {
				t.Errorf("Classify(%q, %s) = %s, want %s", tc.text, tc.language, got.Kind, tc.want)
			}
		})
	}
}

func TestClassifyEmergencyKeywordReported(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	got := c.Classify("please help, I cannot breathe at all", models.LanguageEnglish)
	if got.Kind != models.ClassificationEmergencyMatch {
		t.Fatalf("expected emergency match, got %s", got.Kind)
	}
	if got.Keyword != "cannot breathe" {
		t.Errorf("expected matched keyword %q, got %q", "cannot breathe", got.Keyword)
	}
}

func TestIsEmergency(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	if keyword, ok := c.IsEmergency("Crushing PAIN in my chest", models.LanguageEnglish); !ok || keyword != "crushing pain" {
		t.Errorf("expected crushing pain match, got %q ok=%v", keyword, ok)
	}
	if _, ok := c.IsEmergency("just a routine checkup", models.LanguageEnglish); ok {
		t.Error("routine text should not be an emergency")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	first := c.Classify("yes, emergency now", models.LanguageEnglish)
	for i := 0; i < 10; i++ {
		if got := c.Classify("yes, emergency now", models.LanguageEnglish); got != first {
			t.Fatalf("classification changed between runs: %+v vs %+v", first, got)
		}
	}
}

func TestNewFromFileMissing(t *testing.T) {
	if _, err := NewFromFile("/nonexistent/keywords.json"); err == nil {
		t.Error("expected error for missing keyword file")
	}
}

func TestLanguages(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	langs := c.Languages()
	if len(langs) != 3 {
		t.Errorf("expected 3 configured languages, got %d", len(langs))
	}
}

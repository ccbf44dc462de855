package flow

import (
	"strings"
	"testing"
)

func TestKnowledgeBaseLookup(t *testing.T) {
	kb, err := NewKnowledgeBase()
	if err != nil {
		t.Fatalf("failed to build knowledge base: %v", err)
	}

	cases := []struct {
		question string
		wantHit  bool
		contains string
	}{
		{"what is angina exactly?", true, "Angina"},
		{"should I worry about my blood pressure", true, "blood pressure"},
		{"will you do an ECG?", true, "electrical activity"},
		{"how much does the consultation cost", true, "fees"},
		{"what should I bring to the appointment", true, "reports"},
		{"can I take my dog to the hospital", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			answer, ok := kb.Lookup(tc.question)
			if ok != tc.wantHit {
				t.Fatalf("Lookup(%q) hit = %v, want %v", tc.question, ok, tc.wantHit)
			}
			if tc.wantHit && !strings.Contains(answer, tc.contains) {
				t.Errorf("answer %q should contain %q", answer, tc.contains)
			}
		})
	}
}

func TestKnowledgeBaseCaseInsensitive(t *testing.T) {
	kb, err := NewKnowledgeBase()
	if err != nil {
		t.Fatalf("failed to build knowledge base: %v", err)
	}
	lower, ok := kb.Lookup("tell me about cholesterol")
	if !ok {
		t.Fatal("expected cholesterol hit")
	}
	upper, ok := kb.Lookup("TELL ME ABOUT CHOLESTEROL")
	if !ok || upper != lower {
		t.Error("lookup should be case-insensitive and stable")
	}
}

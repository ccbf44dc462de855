package models

import (
	"testing"
	"time"
)

func TestStageCanAdvance(t *testing.T) {
	cases := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"forward step", StageIdentityVerification, StageSymptomInquiry, true},
		{"stay in place", StageQuestionsAndAnswers, StageQuestionsAndAnswers, true},
		{"skip ahead", StageDiagnosisSummary, StageAppointmentScheduling, true},
		{"regression", StageAppointmentScheduling, StageSymptomInquiry, false},
		{"terminated from anywhere", StageGreeting, StageTerminated, true},
		{"unknown stage", Stage("bogus"), StageSymptomInquiry, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanAdvance(tc.to); got != tc.want {
				t.Errorf("CanAdvance(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := []struct {
		hint string
		want Language
	}{
		{"tamil", LanguageTamil},
		{"hindi", LanguageHindi},
		{"english", LanguageEnglish},
		{"french", LanguageEnglish},
		{"", LanguageEnglish},
	}
	for _, tc := range cases {
		if got := NormalizeLanguage(tc.hint); got != tc.want {
			t.Errorf("NormalizeLanguage(%q) = %s, want %s", tc.hint, got, tc.want)
		}
	}
}

func TestPhoneLast4(t *testing.T) {
	p := PatientRef{Phone: "+919876543210"}
	if got := p.PhoneLast4(); got != "3210" {
		t.Errorf("expected last4 3210, got %q", got)
	}
	short := PatientRef{Phone: "91"}
	if got := short.PhoneLast4(); got != "91" {
		t.Errorf("expected short phone returned whole, got %q", got)
	}
}

func TestCallContextClosed(t *testing.T) {
	call := CallContext{CallID: "c1"}
	if call.Closed() {
		t.Error("new call should not be closed")
	}
	now := time.Now().UTC()
	call.CompletedAt = &now
	if !call.Closed() {
		t.Error("call with CompletedAt should be closed")
	}
}

func TestAppendTranscript(t *testing.T) {
	call := CallContext{CallID: "c1", Language: LanguageTamil}
	call.AppendTranscript(SpeakerPatient, "hello")
	call.AppendTranscript(SpeakerAssistant, "hi there")

	if len(call.Transcript) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(call.Transcript))
	}
	if call.Transcript[0].Speaker != SpeakerPatient || call.Transcript[0].Text != "hello" {
		t.Errorf("unexpected first entry: %+v", call.Transcript[0])
	}
	if call.Transcript[1].Language != LanguageTamil {
		t.Errorf("expected entry language tamil, got %s", call.Transcript[1].Language)
	}
}

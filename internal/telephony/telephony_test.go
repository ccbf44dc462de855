package telephony

import (
	"context"
	"strings"
	"testing"
)

func TestMockDialer(t *testing.T) {
	ctx := context.Background()
	mock := NewMockDialer()

	sid, err := mock.PlaceCall(ctx, "+919876543210", "https://example.com/twiml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid == "" {
		t.Error("expected a call sid")
	}
	if len(mock.PlacedCalls) != 1 || mock.PlacedCalls[0].To != "+919876543210" {
		t.Errorf("unexpected placed calls: %+v", mock.PlacedCalls)
	}

	if err := mock.Say(ctx, "+919876543210", "Hello", "tamil"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SpokenLines) != 1 || mock.SpokenLines[0].Language != "tamil" {
		t.Errorf("unexpected spoken lines: %+v", mock.SpokenLines)
	}
}

func TestSayTwiml(t *testing.T) {
	cases := []struct {
		language string
		locale   string
	}{
		{"english", "en-IN"},
		{"tamil", "ta-IN"},
		{"hindi", "hi-IN"},
		{"unknown", "en-IN"},
	}
	for _, tc := range cases {
		got := sayTwiml("hello", tc.language)
		if !strings.Contains(got, `language="`+tc.locale+`"`) {
			t.Errorf("sayTwiml(%s) = %q, want locale %s", tc.language, got, tc.locale)
		}
	}
}

func TestSayTwimlEscapesText(t *testing.T) {
	got := sayTwiml(`press "1" <now> & wait`, "english")
	if strings.Contains(got, "<now>") {
		t.Errorf("text must be XML-escaped: %q", got)
	}
	if !strings.Contains(got, "&amp;") {
		t.Errorf("ampersand must be escaped: %q", got)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected error without from number")
	}
}

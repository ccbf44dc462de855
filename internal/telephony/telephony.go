// Package telephony wraps the Twilio voice API for outbound patient calls.
package telephony

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// VoiceDialer places outbound voice calls and speaks text on them.
type VoiceDialer interface {
	PlaceCall(ctx context.Context, to, callbackURL string) (string, error)
	Say(ctx context.Context, to, text, language string) error
}

// Opts holds configuration options for the Twilio voice client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio voice client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the caller id number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Client wraps the Twilio REST API for voice calls.
type Client struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewClient creates a voice client, falling back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER environment variables for unset
// options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("telephony.NewClient: config loaded",
		"accountSID_set", cfg.AccountSID != "",
		"authToken_set", cfg.AuthToken != "",
		"fromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:     client,
		fromNumber: cfg.FromNumber,
	}, nil
}

// PlaceCall starts an outbound call to the patient. Twilio fetches TwiML from
// callbackURL once the patient answers; the call SID is returned for tracking.
func (c *Client) PlaceCall(ctx context.Context, to, callbackURL string) (string, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetUrl(callbackURL)

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("telephony.PlaceCall: failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to place call to %s: %w", to, err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Info("telephony.PlaceCall: call started", "to", to, "sid", sid)
	return sid, nil
}

// Say places a call that speaks a single text message via inline TwiML.
func (c *Client) Say(ctx context.Context, to, text, language string) error {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetTwiml(sayTwiml(text, language))

	if _, err := c.client.Api.CreateCall(params); err != nil {
		slog.Error("telephony.Say: failed", "to", to, "error", err)
		return fmt.Errorf("failed to speak to %s: %w", to, err)
	}
	slog.Debug("telephony.Say: message spoken", "to", to, "language", language)
	return nil
}

// sayTwiml renders a minimal <Say> document with the right voice locale.
func sayTwiml(text, language string) string {
	locale := "en-IN"
	switch language {
	case "tamil":
		locale = "ta-IN"
	case "hindi":
		locale = "hi-IN"
	}
	return fmt.Sprintf(`<Response><Say language="%s">%s</Say></Response>`, locale, html.EscapeString(text))
}

// MockDialer records calls for tests.
type MockDialer struct {
	PlacedCalls []PlacedCall
	SpokenLines []SpokenLine
}

// PlacedCall is one recorded PlaceCall invocation.
type PlacedCall struct {
	To          string
	CallbackURL string
}

// SpokenLine is one recorded Say invocation.
type SpokenLine struct {
	To       string
	Text     string
	Language string
}

// NewMockDialer creates an empty mock dialer.
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

func (m *MockDialer) PlaceCall(ctx context.Context, to, callbackURL string) (string, error) {
	m.PlacedCalls = append(m.PlacedCalls, PlacedCall{To: to, CallbackURL: callbackURL})
	return fmt.Sprintf("CA%08d", len(m.PlacedCalls)), nil
}

func (m *MockDialer) Say(ctx context.Context, to, text, language string) error {
	m.SpokenLines = append(m.SpokenLines, SpokenLine{To: to, Text: text, Language: language})
	return nil
}

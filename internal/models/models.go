// Package models defines the core data structures for cardiovoice.
//
// It includes the per-call conversation context, risk assessment and booking
// records, and the shared error taxonomy used across modules.
package models

import (
	"errors"
	"time"
)

// Stage identifies a point in the scripted cardiology questionnaire.
type Stage string

const (
	// StageGreeting is the initial stage before the greeting has been spoken.
	StageGreeting Stage = "greeting"
	// StageIdentityVerification waits for the patient to confirm their identity.
	StageIdentityVerification Stage = "identity_verification"
	// StageSymptomInquiry collects the symptom narrative over three questions.
	StageSymptomInquiry Stage = "symptom_inquiry"
	// StageDiagnosisSummary presents the risk summary once.
	StageDiagnosisSummary Stage = "diagnosis_summary"
	// StageQuestionsAndAnswers answers patient questions until they are ready.
	StageQuestionsAndAnswers Stage = "questions_and_answers"
	// StageAppointmentScheduling books the consultation.
	StageAppointmentScheduling Stage = "appointment_scheduling"
	// StageAppointmentConfirmed is terminal for the scripted flow.
	StageAppointmentConfirmed Stage = "appointment_confirmed"
	// StageTerminated marks a closed call (completed, hung up, or escalated).
	StageTerminated Stage = "terminated"
)

// stageOrder fixes the forward-only progression of the script.
var stageOrder = map[Stage]int{
	StageGreeting:              0,
	StageIdentityVerification:  1,
	StageSymptomInquiry:        2,
	StageDiagnosisSummary:      3,
	StageQuestionsAndAnswers:   4,
	StageAppointmentScheduling: 5,
	StageAppointmentConfirmed:  6,
	StageTerminated:            7,
}

// CanAdvance reports whether moving from s to next respects the fixed stage
// sequence. StageTerminated is reachable from anywhere (emergency jump or
// explicit termination).
func (s Stage) CanAdvance(next Stage) bool {
	if next == StageTerminated {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	if !ok {
		return false
	}
	return to >= from
}

// Language is the caller's configured conversation language.
type Language string

const (
	LanguageEnglish Language = "english"
	LanguageTamil   Language = "tamil"
	LanguageHindi   Language = "hindi"
)

// NormalizeLanguage maps a language hint to a supported language, falling back
// to English for unknown codes.
func NormalizeLanguage(hint string) Language {
	switch Language(hint) {
	case LanguageTamil:
		return LanguageTamil
	case LanguageHindi:
		return LanguageHindi
	case LanguageEnglish:
		return LanguageEnglish
	default:
		return LanguageEnglish
	}
}

// ClassificationKind tags the outcome of utterance classification.
type ClassificationKind string

const (
	ClassificationAffirmation    ClassificationKind = "affirmation"
	ClassificationNegation       ClassificationKind = "negation"
	ClassificationQuestion       ClassificationKind = "question"
	ClassificationEmergencyMatch ClassificationKind = "emergency_match"
	ClassificationContent        ClassificationKind = "content"
)

// Classification is the typed result of classifying one utterance.
type Classification struct {
	Kind ClassificationKind `json:"kind"`
	// Keyword holds the matched emergency phrase when Kind is
	// ClassificationEmergencyMatch; empty otherwise.
	Keyword string `json:"keyword,omitempty"`
}

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerPatient   Speaker = "patient"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one line of the append-only call transcript.
type TranscriptEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Language  Language  `json:"language"`
}

// PatientRef is the read-only view of the patient registry record that the
// conversation personalizes from.
type PatientRef struct {
	Name               string   `json:"name"`
	Phone              string   `json:"phone"`
	MedicalCategory    string   `json:"medical_category"`
	ProblemDescription string   `json:"problem_description"`
	LanguagePreference Language `json:"language_preference"`
}

// PhoneLast4 returns the last four digits of the patient's phone number for
// identity confirmation prompts.
func (p PatientRef) PhoneLast4() string {
	if len(p.Phone) < 4 {
		return p.Phone
	}
	return p.Phone[len(p.Phone)-4:]
}

// RiskLevel is the tier derived from a weighted symptom rule score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Priority tags the urgency of a recommendation or directive.
type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityUrgent    Priority = "urgent"
	PriorityRoutine   Priority = "routine"
	PriorityCritical  Priority = "critical"
)

// Findings accumulates structured results over the life of a call.
type Findings struct {
	SymptomNarrative []string  `json:"symptom_narrative,omitempty"`
	QuestionsAsked   int       `json:"questions_asked"`
	RiskLevel        RiskLevel `json:"risk_level,omitempty"`
	Recommendation   string    `json:"recommendation,omitempty"`
}

// CallContext is the per-call mutable state. It is exclusively owned by its
// call for the call's duration; the store serializes cross-call access.
type CallContext struct {
	CallID      string            `json:"call_id"`
	Stage       Stage             `json:"stage"`
	Language    Language          `json:"language"`
	Patient     PatientRef        `json:"patient"`
	Findings    Findings          `json:"findings"`
	Transcript  []TranscriptEntry `json:"transcript"`
	Escalated   bool              `json:"escalated"`
	BookingID   string            `json:"booking_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Closed reports whether the call has reached a terminal state.
func (c *CallContext) Closed() bool {
	return c.CompletedAt != nil
}

// AppendTranscript records one spoken line. The transcript is append-only and
// never truncated mid-call.
func (c *CallContext) AppendTranscript(speaker Speaker, text string) {
	c.Transcript = append(c.Transcript, TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Language:  c.Language,
	})
}

// AssessmentType distinguishes the two symptom rule engines.
type AssessmentType string

const (
	AssessmentChestPain AssessmentType = "chest_pain"
	AssessmentBreathing AssessmentType = "breathing"
)

// RiskAssessment is the immutable result of one symptom scoring pass.
type RiskAssessment struct {
	ID             string            `json:"id"`
	CallID         string            `json:"call_id,omitempty"`
	Type           AssessmentType    `json:"type"`
	Inputs         map[string]string `json:"inputs"`
	RiskScore      int               `json:"risk_score"`
	RiskLevel      RiskLevel         `json:"risk_level"`
	Recommendation string            `json:"recommendation"`
	Priority       Priority          `json:"priority"`
	CreatedAt      time.Time         `json:"created_at"`
}

// BookingStatus is the lifecycle state of an appointment booking.
type BookingStatus string

const (
	BookingScheduled   BookingStatus = "scheduled"
	BookingConfirmed   BookingStatus = "confirmed"
	BookingCancelled   BookingStatus = "cancelled"
	BookingRescheduled BookingStatus = "rescheduled"
)

// AppointmentBooking is the record the core emits to the appointment registry.
type AppointmentBooking struct {
	ID              string        `json:"id"`
	CallID          string        `json:"call_id"`
	PatientName     string        `json:"patient_name"`
	PhoneNumber     string        `json:"phone_number"`
	AppointmentType string        `json:"appointment_type"`
	Urgency         string        `json:"urgency"`
	PreferredTime   string        `json:"preferred_time,omitempty"`
	ScheduledWindow string        `json:"scheduled_window"`
	Duration        string        `json:"duration"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}

// EmergencyDirective is the immediate-action response produced when the
// escalation handler overrides the normal flow.
type EmergencyDirective struct {
	ID               string    `json:"id"`
	Symptoms         string    `json:"symptoms"`
	Severity         string    `json:"severity"`
	PatientLocation  string    `json:"patient_location,omitempty"`
	Message          string    `json:"message"`
	Priority         Priority  `json:"priority"`
	ImmediateActions []string  `json:"immediate_actions"`
	CreatedAt        time.Time `json:"created_at"`
}

// TurnResult is what the core returns to the telephony/speech gateway for one
// conversational turn.
type TurnResult struct {
	Reply    string `json:"response_text"`
	Stage    Stage  `json:"stage_after"`
	Terminal bool   `json:"terminal"`
}

// Error variables for the shared error taxonomy.
var (
	// ErrCallNotFound indicates an unknown or already released call id.
	ErrCallNotFound = errors.New("call context not found")
	// ErrCallClosed indicates a turn arrived after the call was terminated.
	ErrCallClosed = errors.New("call is closed")
	// ErrMissingPatientContext indicates the patient ref could not be
	// resolved; this is fatal for the call.
	ErrMissingPatientContext = errors.New("patient context missing")
	// ErrEmptyUtterance indicates a turn with no transcribed text.
	ErrEmptyUtterance = errors.New("utterance cannot be empty")
	// ErrEmptyCallID indicates a request without a call id.
	ErrEmptyCallID = errors.New("call id cannot be empty")
	// ErrBookingNotFound indicates an unknown booking id.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrPatientNotFound indicates an unknown patient id.
	ErrPatientNotFound = errors.New("patient not found")
)

// APIError is a generic API error payload.
type APIError struct {
	Error string `json:"error"`
}

// Error wraps a message into an APIError payload.
func Error(msg string) APIError {
	return APIError{Error: msg}
}

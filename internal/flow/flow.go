// Package flow implements the dialogue engine for the cardiology call script.
//
// The engine drives a fixed forward-only stage sequence per call: greeting,
// identity verification, a three-question symptom inquiry, a diagnosis
// summary, an open Q&A stage, and appointment scheduling. Emergency keyword
// matches short-circuit any stage. All per-call state lives in the injected
// store; the engine itself is stateless and safe for concurrent calls.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medagg/cardiovoice/internal/booking"
	"github.com/medagg/cardiovoice/internal/classify"
	"github.com/medagg/cardiovoice/internal/genai"
	"github.com/medagg/cardiovoice/internal/i18n"
	"github.com/medagg/cardiovoice/internal/models"
	"github.com/medagg/cardiovoice/internal/store"
	"github.com/medagg/cardiovoice/internal/triage"
)

// symptomQuestionCount is how many scripted follow-up questions the inquiry
// stage asks before summarizing.
const symptomQuestionCount = 3

// Listener receives every transcript entry as it is appended, for live feeds.
type Listener func(callID string, entry models.TranscriptEntry)

// Opts holds configuration options for the dialogue engine.
type Opts struct {
	Store      store.Store
	Classifier *classify.Classifier
	Localizer  *i18n.Localizer
	GenAI      genai.ClientInterface
	Listener   Listener
}

// Option defines a configuration option for the dialogue engine.
type Option func(*Opts)

// WithStore sets the backing store.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithClassifier overrides the utterance classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Opts) { o.Classifier = c }
}

// WithLocalizer overrides the response localizer.
func WithLocalizer(l *i18n.Localizer) Option {
	return func(o *Opts) { o.Localizer = l }
}

// WithGenAI enables the generative fallback for open patient questions.
func WithGenAI(g genai.ClientInterface) Option {
	return func(o *Opts) { o.GenAI = g }
}

// WithListener registers a transcript listener.
func WithListener(fn Listener) Option {
	return func(o *Opts) { o.Listener = fn }
}

// Engine orchestrates conversation turns across the collaborating services.
type Engine struct {
	store      store.Store
	classifier *classify.Classifier
	localizer  *i18n.Localizer
	assessor   *triage.Assessor
	escalation *triage.EmergencyHandler
	negotiator *booking.Negotiator
	knowledge  *KnowledgeBase
	gen        genai.ClientInterface
	listener   Listener
}

// NewEngine creates a dialogue engine. Unset options fall back to the
// in-memory store and the embedded classifier/localizer tables; the
// generative fallback stays disabled unless provided.
func NewEngine(opts ...Option) (*Engine, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	if cfg.Classifier == nil {
		c, err := classify.New()
		if err != nil {
			return nil, fmt.Errorf("failed to build classifier: %w", err)
		}
		cfg.Classifier = c
	}
	if cfg.Localizer == nil {
		l, err := i18n.New()
		if err != nil {
			return nil, fmt.Errorf("failed to build localizer: %w", err)
		}
		cfg.Localizer = l
	}
	kb, err := NewKnowledgeBase()
	if err != nil {
		return nil, fmt.Errorf("failed to build knowledge base: %w", err)
	}
	return &Engine{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		localizer:  cfg.Localizer,
		assessor:   triage.NewAssessor(),
		escalation: triage.NewEmergencyHandler(),
		negotiator: booking.NewNegotiator(cfg.Store),
		knowledge:  kb,
		gen:        cfg.GenAI,
		listener:   cfg.Listener,
	}, nil
}

// StartCall creates a call context and returns it with the rendered greeting.
// The greeting is spoken at creation, so the context starts at identity
// verification waiting for the patient's confirmation.
func (e *Engine) StartCall(ctx context.Context, patient models.PatientRef, languageHint string) (models.CallContext, string, error) {
	if patient.Name == "" && patient.Phone != "" {
		if known, err := e.store.GetPatient(ctx, patient.Phone); err == nil {
			patient = *known
		}
	}
	if patient.Name == "" || patient.Phone == "" {
		slog.Error("Engine.StartCall: patient context unresolvable", "hasName", patient.Name != "", "hasPhone", patient.Phone != "")
		return models.CallContext{}, "", models.ErrMissingPatientContext
	}

	language := patient.LanguagePreference
	if languageHint != "" {
		language = models.NormalizeLanguage(languageHint)
	}
	if language == "" {
		language = models.LanguageEnglish
	}

	call := models.CallContext{
		CallID:    uuid.NewString(),
		Stage:     models.StageIdentityVerification,
		Language:  language,
		Patient:   patient,
		CreatedAt: time.Now().UTC(),
	}

	greeting := e.localizer.Render(i18n.KeyGreeting, language, i18n.Values{
		"name":             patient.Name,
		"medical_category": patient.MedicalCategory,
		"phone_last4":      patient.PhoneLast4(),
	})
	e.speak(&call, greeting)

	if err := e.store.SavePatient(ctx, patient.Phone, patient); err != nil {
		slog.Error("Engine.StartCall: failed to save patient record", "error", err, "callID", call.CallID)
	}
	if err := e.store.SaveCall(ctx, call); err != nil {
		slog.Error("Engine.StartCall: failed to persist call context", "error", err, "callID", call.CallID)
		return models.CallContext{}, "", fmt.Errorf("failed to save call: %w", err)
	}

	slog.Info("Engine.StartCall: call created", "callID", call.CallID, "language", language, "patientPhone", patient.PhoneLast4())
	return call, greeting, nil
}

// ProcessTurn advances one conversational turn: it records the patient
// utterance, checks for an emergency override, runs the current stage's
// handler, persists the updated context, and returns the reply.
func (e *Engine) ProcessTurn(ctx context.Context, callID, utterance, languageHint string) (models.TurnResult, error) {
	if callID == "" {
		return models.TurnResult{}, models.ErrEmptyCallID
	}
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return models.TurnResult{}, models.ErrEmptyUtterance
	}

	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return models.TurnResult{}, fmt.Errorf("failed to load call %s: %w", callID, err)
	}
	if call.Closed() {
		return models.TurnResult{}, models.ErrCallClosed
	}
	// Language is fixed for the call's lifetime once known; a per-turn hint
	// only fills it in when creation left it unset.
	if call.Language == "" {
		call.Language = models.NormalizeLanguage(languageHint)
	} else if hint := models.NormalizeLanguage(languageHint); languageHint != "" && hint != call.Language {
		slog.Debug("Engine.ProcessTurn: ignoring language hint on established call",
			"callID", callID, "language", call.Language, "hint", languageHint)
	}

	e.hear(call, utterance)

	var reply string
	if keyword, ok := e.classifier.IsEmergency(utterance, call.Language); ok {
		reply = e.escalate(ctx, call, utterance, keyword)
	} else {
		reply = e.handleStage(ctx, call, utterance)
	}
	e.speak(call, reply)

	if err := e.store.SaveCall(ctx, *call); err != nil {
		// The caller still gets a spoken reply; losing one persistence
		// write must not drop the live call.
		slog.Error("Engine.ProcessTurn: failed to persist call context", "error", err, "callID", callID)
		reply = e.localizer.Render(i18n.KeyErrorApology, call.Language, nil)
	}

	result := models.TurnResult{Reply: reply, Stage: call.Stage, Terminal: call.Closed()}
	slog.Debug("Engine.ProcessTurn: turn complete", "callID", callID, "stage", call.Stage, "terminal", result.Terminal)
	return result, nil
}

// Terminate closes a call explicitly (hang-up or operator action).
func (e *Engine) Terminate(ctx context.Context, callID string) (models.CallContext, error) {
	if callID == "" {
		return models.CallContext{}, models.ErrEmptyCallID
	}
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return models.CallContext{}, fmt.Errorf("failed to load call %s: %w", callID, err)
	}
	if !call.Closed() {
		e.close(call, models.StageTerminated)
		if err := e.store.SaveCall(ctx, *call); err != nil {
			return models.CallContext{}, fmt.Errorf("failed to save call: %w", err)
		}
	}
	slog.Info("Engine.Terminate: call closed", "callID", callID, "stage", call.Stage, "escalated", call.Escalated)
	return *call, nil
}

// handleStage dispatches on the current stage. Every branch either stays in
// place or advances; the stage order check guards against regressions.
func (e *Engine) handleStage(ctx context.Context, call *models.CallContext, utterance string) string {
	classification := e.classifier.Classify(utterance, call.Language)

	switch call.Stage {
	case models.StageGreeting, models.StageIdentityVerification:
		return e.verifyIdentity(call, classification)
	case models.StageSymptomInquiry:
		return e.collectSymptoms(ctx, call, utterance)
	case models.StageDiagnosisSummary:
		return e.afterDiagnosis(ctx, call, utterance, classification)
	case models.StageQuestionsAndAnswers:
		return e.answerOrSchedule(ctx, call, utterance, classification)
	case models.StageAppointmentScheduling:
		return e.scheduleAppointment(ctx, call, utterance, classification)
	case models.StageAppointmentConfirmed:
		// The scripted flow is done; further turns get the generic reply
		// until the gateway terminates the call.
		return e.localizer.Render(i18n.KeyDefault, call.Language, nil)
	default:
		slog.Warn("Engine.handleStage: unexpected stage", "callID", call.CallID, "stage", call.Stage)
		return e.localizer.Render(i18n.KeyDefault, call.Language, nil)
	}
}

// verifyIdentity waits for an affirmation; anything else re-prompts.
func (e *Engine) verifyIdentity(call *models.CallContext, classification models.Classification) string {
	if classification.Kind == models.ClassificationAffirmation {
		e.advance(call, models.StageSymptomInquiry)
		return e.localizer.Render(i18n.KeyIdentityConfirmed, call.Language, i18n.Values{
			"problem_description": call.Patient.ProblemDescription,
		})
	}
	return e.localizer.Render(i18n.KeyIdentityConfirm, call.Language, i18n.Values{
		"phone_last4": call.Patient.PhoneLast4(),
	})
}

// collectSymptoms appends the answer to the narrative and either asks the
// next scripted question or, after the final answer, produces the diagnosis
// summary in the same turn.
func (e *Engine) collectSymptoms(ctx context.Context, call *models.CallContext, utterance string) string {
	call.Findings.SymptomNarrative = append(call.Findings.SymptomNarrative, utterance)
	call.Findings.QuestionsAsked++

	if call.Findings.QuestionsAsked < symptomQuestionCount {
		question := e.localizer.SymptomQuestion(call.Findings.QuestionsAsked, call.Language)
		return e.localizer.Render(i18n.KeySymptomAck, call.Language, i18n.Values{"question": question})
	}
	return e.summarizeDiagnosis(ctx, call)
}

// summarizeDiagnosis scores the collected narrative. High risk escalates
// immediately instead of presenting a summary; otherwise the call moves to
// the diagnosis summary stage with the localized recommendation.
func (e *Engine) summarizeDiagnosis(ctx context.Context, call *models.CallContext) string {
	narrative := strings.Join(call.Findings.SymptomNarrative, ". ")
	assessments := e.assessNarrative(ctx, call.CallID, narrative)

	level := models.RiskLow
	recommendation := ""
	cardiac := strings.Contains(strings.ToLower(call.Patient.MedicalCategory), "cardio")
	for _, a := range assessments {
		if worseThan(a.RiskLevel, level) || recommendation == "" {
			level = a.RiskLevel
			recommendation = a.Recommendation
		}
		if a.Type == models.AssessmentChestPain {
			cardiac = true
		}
	}
	call.Findings.RiskLevel = level
	call.Findings.Recommendation = recommendation

	if level == models.RiskHigh {
		slog.Warn("Engine.summarizeDiagnosis: high risk narrative, escalating", "callID", call.CallID)
		return e.escalate(ctx, call, narrative, "high risk assessment")
	}

	specialty := "general"
	if cardiac {
		specialty = "cardiology"
	}
	e.advance(call, models.StageDiagnosisSummary)
	return e.localizer.Render(i18n.KeyDiagnosisSummary, call.Language, i18n.Values{
		"recommendation": e.localizer.Recommendation(specialty, call.Language),
		"urgency":        e.localizer.Urgency(level, call.Language),
	})
}

// afterDiagnosis presents the summary exactly once, then hands over to Q&A.
// A direct question is answered on the way; a negation skips straight to
// scheduling.
func (e *Engine) afterDiagnosis(ctx context.Context, call *models.CallContext, utterance string, classification models.Classification) string {
	switch classification.Kind {
	case models.ClassificationNegation:
		e.advance(call, models.StageAppointmentScheduling)
		return e.localizer.Render(i18n.KeyAppointmentOffer, call.Language, nil)
	case models.ClassificationQuestion:
		e.advance(call, models.StageQuestionsAndAnswers)
		return e.answerQuestion(ctx, call, utterance)
	default:
		e.advance(call, models.StageQuestionsAndAnswers)
		return e.localizer.Render(i18n.KeyQuestionsWelcome, call.Language, nil)
	}
}

// answerOrSchedule runs the open Q&A stage: questions and free content get
// knowledge-base answers, a negation means the patient is done asking and
// moves to scheduling, an affirmation invites the question.
func (e *Engine) answerOrSchedule(ctx context.Context, call *models.CallContext, utterance string, classification models.Classification) string {
	switch classification.Kind {
	case models.ClassificationNegation:
		e.advance(call, models.StageAppointmentScheduling)
		return e.localizer.Render(i18n.KeyAppointmentOffer, call.Language, nil)
	case models.ClassificationAffirmation:
		return e.localizer.Render(i18n.KeyQuestionsPrompt, call.Language, nil)
	default:
		return e.answerQuestion(ctx, call, utterance)
	}
}

// scheduleAppointment books the consultation and confirms it. A free-content
// utterance is treated as the patient's preferred time; a negation abandons
// scheduling and ends the call politely. Confirmation leaves the call open;
// only Terminate or an emergency closes it.
func (e *Engine) scheduleAppointment(ctx context.Context, call *models.CallContext, utterance string, classification models.Classification) string {
	if classification.Kind == models.ClassificationNegation {
		e.close(call, models.StageTerminated)
		return e.localizer.Render(i18n.KeyDefault, call.Language, nil)
	}

	preferred := ""
	if classification.Kind == models.ClassificationContent {
		preferred = utterance
	}
	urgency := string(call.Findings.RiskLevel)
	if urgency == "" {
		urgency = string(models.RiskLow)
	}

	b, err := e.negotiator.Schedule(ctx, booking.ScheduleRequest{
		CallID:        call.CallID,
		PatientName:   call.Patient.Name,
		PhoneNumber:   call.Patient.Phone,
		Urgency:       urgency,
		PreferredTime: preferred,
	})
	if err != nil {
		slog.Error("Engine.scheduleAppointment: booking failed", "error", err, "callID", call.CallID)
		return e.localizer.Render(i18n.KeyErrorApology, call.Language, nil)
	}

	call.BookingID = b.ID
	e.advance(call, models.StageAppointmentConfirmed)
	return e.localizer.Render(i18n.KeyAppointmentConfirmation, call.Language, i18n.Values{
		"appointment_type": b.AppointmentType,
		"scheduled_window": b.ScheduledWindow,
		"duration":         b.Duration,
	})
}

// escalate overrides the normal flow: it issues the emergency directive,
// marks the call escalated, and closes it with the localized emergency
// instruction as the final reply.
func (e *Engine) escalate(ctx context.Context, call *models.CallContext, symptoms, trigger string) string {
	directive := e.escalation.HandleEmergency(symptoms, "high", "")
	slog.Warn("Engine.escalate: emergency override",
		"callID", call.CallID, "trigger", trigger, "priority", directive.Priority, "directiveID", directive.ID)

	call.Escalated = true
	call.Findings.RiskLevel = models.RiskHigh
	if call.Findings.Recommendation == "" {
		call.Findings.Recommendation = directive.Message
	}
	e.close(call, models.StageTerminated)
	return e.localizer.Render(i18n.KeyEmergencyMessage, call.Language, nil)
}

// assessNarrative runs the typed rule engines over the free-text narrative,
// persisting every assessment produced.
func (e *Engine) assessNarrative(ctx context.Context, callID, narrative string) []models.RiskAssessment {
	lower := strings.ToLower(narrative)
	var out []models.RiskAssessment

	if strings.Contains(lower, "chest") || strings.Contains(lower, "pain") {
		out = append(out, e.assessor.AssessChestPain(triage.ChestPainInput{
			CallID:    callID,
			Location:  "chest",
			PainType:  firstMatch(lower, "sharp", "stabbing", "pressure", "tightness", "dull", "burning"),
			Duration:  firstMatch(lower, "constant", "hours", "days", "weeks", "minutes"),
			Triggers:  firstMatch(lower, "exercise", "activity", "exertion", "stress"),
			Radiation: firstMatch(lower, "jaw", "arm", "neck", "shoulder", "back"),
		}))
	}
	if strings.Contains(lower, "breath") || strings.Contains(lower, "shortness") {
		out = append(out, e.assessor.AssessBreathing(triage.BreathingInput{
			CallID:             callID,
			Severity:           firstMatch(lower, "severe", "moderate", "mild"),
			Timing:             firstMatch(lower, "rest", "lying", "exertion", "activity"),
			AssociatedSymptoms: strings.Join(allMatches(lower, "swelling", "edema", "dizziness", "fainting"), ", "),
		}))
	}

	for _, a := range out {
		if err := e.store.SaveAssessment(ctx, a); err != nil {
			slog.Error("Engine.assessNarrative: failed to save assessment", "error", err, "callID", callID, "type", a.Type)
		}
	}
	return out
}

// hear appends a patient line to the transcript and notifies the listener.
func (e *Engine) hear(call *models.CallContext, text string) {
	call.AppendTranscript(models.SpeakerPatient, text)
	e.notify(call)
}

// speak appends an assistant line to the transcript and notifies the listener.
func (e *Engine) speak(call *models.CallContext, text string) {
	call.AppendTranscript(models.SpeakerAssistant, text)
	e.notify(call)
}

func (e *Engine) notify(call *models.CallContext) {
	if e.listener == nil || len(call.Transcript) == 0 {
		return
	}
	e.listener(call.CallID, call.Transcript[len(call.Transcript)-1])
}

// advance moves the call forward, refusing stage regressions.
func (e *Engine) advance(call *models.CallContext, next models.Stage) {
	if !call.Stage.CanAdvance(next) {
		slog.Error("Engine.advance: refusing stage regression", "callID", call.CallID, "from", call.Stage, "to", next)
		return
	}
	call.Stage = next
}

// close marks the call terminal at the given stage.
func (e *Engine) close(call *models.CallContext, final models.Stage) {
	e.advance(call, final)
	now := time.Now().UTC()
	call.CompletedAt = &now
}

// worseThan orders risk levels for picking the dominant assessment.
func worseThan(a, b models.RiskLevel) bool {
	rank := map[models.RiskLevel]int{models.RiskLow: 0, models.RiskMedium: 1, models.RiskHigh: 2}
	return rank[a] > rank[b]
}

// firstMatch returns the first keyword found in the text, or "".
func firstMatch(lower string, keywords ...string) string {
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			return keyword
		}
	}
	return ""
}

// allMatches returns every keyword present in the text.
func allMatches(lower string, keywords ...string) []string {
	var found []string
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			found = append(found, keyword)
		}
	}
	return found
}

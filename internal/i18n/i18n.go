// Package i18n implements the response localizer.
//
// Every system utterance is rendered from a per-language template table via
// pure lookup and placeholder substitution. Tables can be loaded from an
// external JSON file; built-in defaults for English, Tamil, and Hindi are
// embedded.
package i18n

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "embed"

	"github.com/medagg/cardiovoice/internal/models"
)

//go:embed templates.json
var defaultTemplates []byte

// Template keys used by the conversation engine.
const (
	KeyGreeting                = "greeting"
	KeyIdentityConfirm         = "identity_confirm"
	KeyIdentityConfirmed       = "identity_confirmed"
	KeySymptomAck              = "symptom_ack"
	KeyDiagnosisSummary        = "diagnosis_summary"
	KeyQuestionsWelcome        = "questions_welcome"
	KeyQuestionsPrompt         = "questions_prompt"
	KeyQuestionFallback        = "question_fallback"
	KeyAppointmentOffer        = "appointment_offer"
	KeyAppointmentConfirmation = "appointment_confirmation"
	KeyEmergencyMessage        = "emergency_message"
	KeyDefault                 = "default"
	KeyErrorApology            = "error_apology"
)

// Values holds placeholder substitutions for a template.
type Values map[string]string

// Localizer renders system utterances in the caller's language.
type Localizer struct {
	tables map[models.Language]map[string]string
}

// New creates a Localizer from the embedded default template tables.
func New() (*Localizer, error) {
	return newFromJSON(defaultTemplates)
}

// NewFromFile creates a Localizer from an external template file so new
// languages and phrasings can be added without code changes.
func NewFromFile(path string) (*Localizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Localizer.NewFromFile: failed to read template file", "path", path, "error", err)
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	l, err := newFromJSON(data)
	if err != nil {
		return nil, err
	}
	slog.Info("Localizer.NewFromFile: loaded templates", "path", path, "languages", len(l.tables))
	return l, nil
}

func newFromJSON(data []byte) (*Localizer, error) {
	raw := make(map[string]map[string]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse template tables: %w", err)
	}
	tables := make(map[models.Language]map[string]string, len(raw))
	for lang, table := range raw {
		tables[models.Language(lang)] = table
	}
	if _, ok := tables[models.LanguageEnglish]; !ok {
		return nil, fmt.Errorf("template tables must include english")
	}
	return &Localizer{tables: tables}, nil
}

// Render looks up a template and substitutes {placeholder} values. It is a
// pure function: identical inputs always yield identical output. It fails
// soft: an unknown language falls back to the English table and an unknown
// key returns the language's generic fallback string.
func (l *Localizer) Render(key string, language models.Language, values Values) string {
	table := l.tableFor(language)
	template, ok := table[key]
	if !ok {
		// Try English before giving up on the key entirely.
		if template, ok = l.tables[models.LanguageEnglish][key]; !ok {
			slog.Warn("Localizer.Render: unknown template key, using fallback", "key", key, "language", language)
			return l.fallback(language)
		}
	}
	return substitute(template, values)
}

// Urgency translates a risk level into the language's urgency word.
func (l *Localizer) Urgency(level models.RiskLevel, language models.Language) string {
	return l.Render("urgency_"+string(level), language, nil)
}

// Recommendation returns the localized recommendation phrase for a specialty
// ("cardiology" or "general").
func (l *Localizer) Recommendation(specialty string, language models.Language) string {
	return l.Render("recommendation_"+specialty, language, nil)
}

// SymptomQuestion returns the nth scripted symptom question (1-based).
func (l *Localizer) SymptomQuestion(n int, language models.Language) string {
	return l.Render(fmt.Sprintf("symptom_question_%d", n), language, nil)
}

func (l *Localizer) fallback(language models.Language) string {
	if text, ok := l.tableFor(language)[KeyDefault]; ok {
		return text
	}
	return l.tables[models.LanguageEnglish][KeyDefault]
}

func (l *Localizer) tableFor(language models.Language) map[string]string {
	if table, ok := l.tables[language]; ok {
		return table
	}
	slog.Debug("Localizer.tableFor: unknown language, falling back to english", "language", language)
	return l.tables[models.LanguageEnglish]
}

func substitute(template string, values Values) string {
	if len(values) == 0 {
		return template
	}
	pairs := make([]string, 0, len(values)*2)
	for name, value := range values {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

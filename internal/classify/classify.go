// Package classify implements the rule-based utterance classifier.
//
// Classification is deliberate keyword matching, not statistical NLU: the
// tagged variant is returned, never inferred probabilistically, so the engine
// stays deterministic and auditable. Keyword tables are per-language and can
// be loaded from an external JSON file; built-in defaults are embedded.
package classify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "embed"

	"github.com/medagg/cardiovoice/internal/models"
)

//go:embed keywords.json
var defaultKeywordTables []byte

// KeywordTable holds the word lists for one language.
type KeywordTable struct {
	Affirmation []string `json:"affirmation"`
	Negation    []string `json:"negation"`
	Question    []string `json:"question"`
	Emergency   []string `json:"emergency"`
}

// Classifier maps free-text utterances to typed classifications using
// per-language keyword tables.
type Classifier struct {
	tables map[models.Language]KeywordTable
}

// New creates a Classifier from the embedded default keyword tables.
func New() (*Classifier, error) {
	return newFromJSON(defaultKeywordTables)
}

// NewFromFile creates a Classifier from an external keyword table file so new
// languages and phrases can be added without code changes.
func NewFromFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Classifier.NewFromFile: failed to read keyword file", "path", path, "error", err)
		return nil, fmt.Errorf("failed to read keyword file %s: %w", path, err)
	}
	c, err := newFromJSON(data)
	if err != nil {
		return nil, err
	}
	slog.Info("Classifier.NewFromFile: loaded keyword tables", "path", path, "languages", len(c.tables))
	return c, nil
}

func newFromJSON(data []byte) (*Classifier, error) {
	raw := make(map[string]KeywordTable)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse keyword tables: %w", err)
	}
	tables := make(map[models.Language]KeywordTable, len(raw))
	for lang, table := range raw {
		tables[models.Language(lang)] = table
	}
	if _, ok := tables[models.LanguageEnglish]; !ok {
		return nil, fmt.Errorf("keyword tables must include english")
	}
	return &Classifier{tables: tables}, nil
}

// Classify maps an utterance to exactly one classification. Matching is
// case-insensitive substring search against the language's keyword tables,
// resolved in priority order: emergency, then affirmation/negation, then
// question, then free content. Emergency detection must never be shadowed by
// an accidental yes/no match.
//
// Known limitation: matching is negation-unaware, so "I do NOT have chest
// pain" can still produce an emergency match when the phrase is in the table.
func (c *Classifier) Classify(text string, language models.Language) models.Classification {
	normalized := strings.ToLower(strings.TrimSpace(text))
	table := c.tableFor(language)

	if keyword, ok := matchAny(normalized, table.Emergency); ok {
		slog.Debug("Classifier.Classify: emergency keyword matched", "keyword", keyword, "language", language)
		return models.Classification{Kind: models.ClassificationEmergencyMatch, Keyword: keyword}
	}
	if _, ok := matchAny(normalized, table.Affirmation); ok {
		return models.Classification{Kind: models.ClassificationAffirmation}
	}
	if _, ok := matchAny(normalized, table.Negation); ok {
		return models.Classification{Kind: models.ClassificationNegation}
	}
	if _, ok := matchAny(normalized, table.Question); ok {
		return models.Classification{Kind: models.ClassificationQuestion}
	}
	return models.Classification{Kind: models.ClassificationContent}
}

// IsEmergency reports whether the utterance contains any configured emergency
// phrase for the language, independent of dialogue stage.
func (c *Classifier) IsEmergency(text string, language models.Language) (string, bool) {
	return matchAny(strings.ToLower(text), c.tableFor(language).Emergency)
}

// Languages returns the set of languages with configured tables.
func (c *Classifier) Languages() []models.Language {
	langs := make([]models.Language, 0, len(c.tables))
	for lang := range c.tables {
		langs = append(langs, lang)
	}
	return langs
}

// tableFor resolves the keyword table for a language, falling back to English
// for unknown languages.
func (c *Classifier) tableFor(language models.Language) KeywordTable {
	if table, ok := c.tables[language]; ok {
		return table
	}
	slog.Debug("Classifier.tableFor: unknown language, falling back to english", "language", language)
	return c.tables[models.LanguageEnglish]
}

func matchAny(normalized string, keywords []string) (string, bool) {
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(keyword)) {
			return keyword, true
		}
	}
	return "", false
}

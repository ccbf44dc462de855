package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/openai/openai-go"

	"github.com/medagg/cardiovoice/internal/i18n"
	"github.com/medagg/cardiovoice/internal/models"
)

//go:embed knowledge.json
var defaultKnowledge []byte

// genAITimeout bounds the generative fallback so a slow completion never
// stalls a live voice turn.
const genAITimeout = 10 * time.Second

const qaSystemPrompt = "You are a cautious healthcare call assistant for a cardiology clinic. " +
	"Answer the patient's question in two or three short sentences of plain language. " +
	"Never diagnose, never prescribe, and always defer specifics to the specialist appointment."

// kbEntry pairs trigger keywords with a canned answer.
type kbEntry struct {
	Keywords []string `json:"keywords"`
	Answer   string   `json:"answer"`
}

// KnowledgeBase answers common patient questions by keyword lookup.
type KnowledgeBase struct {
	entries []kbEntry
}

// NewKnowledgeBase loads the embedded question/answer entries.
func NewKnowledgeBase() (*KnowledgeBase, error) {
	var entries []kbEntry
	if err := json.Unmarshal(defaultKnowledge, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge entries: %w", err)
	}
	return &KnowledgeBase{entries: entries}, nil
}

// Lookup returns the first entry whose keyword appears in the question.
func (kb *KnowledgeBase) Lookup(question string) (string, bool) {
	lower := strings.ToLower(question)
	for _, entry := range kb.entries {
		for _, keyword := range entry.Keywords {
			if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
				return entry.Answer, true
			}
		}
	}
	return "", false
}

// answerQuestion resolves a patient question: knowledge base first, then the
// generative client when configured, then the localized deferral template.
func (e *Engine) answerQuestion(ctx context.Context, call *models.CallContext, question string) string {
	if answer, ok := e.knowledge.Lookup(question); ok {
		slog.Debug("Engine.answerQuestion: knowledge base hit", "callID", call.CallID)
		return answer
	}

	if e.gen != nil {
		genCtx, cancel := context.WithTimeout(ctx, genAITimeout)
		defer cancel()
		answer, err := e.gen.GenerateWithMessages(genCtx, []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(qaSystemPrompt),
			openai.UserMessage(question),
		})
		if err == nil && strings.TrimSpace(answer) != "" {
			slog.Debug("Engine.answerQuestion: generative answer used", "callID", call.CallID)
			return answer
		}
		if err != nil {
			slog.Error("Engine.answerQuestion: generative fallback failed", "error", err, "callID", call.CallID)
		}
	}

	return e.localizer.Render(i18n.KeyQuestionFallback, call.Language, nil)
}

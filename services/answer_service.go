package services

import (
	"context"
	"fmt"
	"strings"

	"research-board-platform/internal/ai"
	"research-board-platform/models"
)

const answerSystemPrompt = "You are a helpful assistant. Use ONLY the provided context." +
	" The context may contain blocks like '=== GROUP <name> ==='." +
	" When the user asks about multiple groups, answer for EACH mentioned group with clear, separate bullets." +
	" If a group's description is present but transcripts are thin, still provide 1-2 bullets consistent with that description." +
	" When timestamp ranges like [mm:ss-mm:ss] are present, include them in your answer to cite evidence."

// maxContextChars bounds the rendered context sent to the model.
const maxContextChars = 20000

// AnswerService renders assembled contexts into a prompt and asks the
// configured model.
type AnswerService struct {
	llm *ai.LLMClient
}

func NewAnswerService(llm *ai.LLMClient) *AnswerService {
	return &AnswerService{llm: llm}
}

// Answer generates a grounded reply to the query from the given
// contexts.
func (as *AnswerService) Answer(ctx context.Context, query string, contexts []models.ContextPiece) (*ai.Answer, error) {
	userPrompt := fmt.Sprintf(
		"Here is the transcript context for the video(s):\n\n%s\n\nQuestion: %s",
		RenderContexts(contexts), query)
	return as.llm.Generate(ctx, answerSystemPrompt, userPrompt)
}

// RenderContexts joins context pieces with blank lines, prefixing
// transcript pieces with their timestamp range, and truncates the
// result to the context budget.
func RenderContexts(contexts []models.ContextPiece) string {
	blocks := make([]string, 0, len(contexts))
	for _, c := range contexts {
		blocks = append(blocks, formatContextBlock(c))
	}
	joined := strings.Join(blocks, "\n\n")
	if runes := []rune(joined); len(runes) > maxContextChars {
		joined = string(runes[:maxContextChars])
	}
	return joined
}

func formatContextBlock(c models.ContextPiece) string {
	if c.StartTime == nil && c.EndTime == nil {
		return c.Text
	}
	return fmt.Sprintf("[%s-%s] %s", formatTimestamp(c.StartTime), formatTimestamp(c.EndTime), c.Text)
}

// formatTimestamp renders seconds as mm:ss. Minutes keep counting past
// an hour, so 3700s renders as 61:40.
func formatTimestamp(seconds *float64) string {
	s := 0
	if seconds != nil {
		s = int(*seconds)
	}
	m := s / 60
	s = s % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

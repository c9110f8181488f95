package service

import (
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are a study assistant for a course whose lecture notes are loaded into a knowledge base.
Explain the topic of the question in detail, using only the notes below. Do not solve assignments for the student; explain how to approach them instead.
Name the source file and page you relied on so the student can read further.
Answer only questions related to the course material.`

// PromptRole is the role of a message sent to the chat model.
type PromptRole string

const (
	PromptRoleSystem    PromptRole = "system"
	PromptRoleUser      PromptRole = "user"
	PromptRoleAssistant PromptRole = "assistant"
)

// PromptMessage is one message in a chat completion request.
type PromptMessage struct {
	Role    PromptRole
	Content string
}

// BuildPrompt assembles the messages for one query: the system block with the
// retrieved context, then prior turns oldest first, then the question.
func BuildPrompt(systemPrompt string, hits []domain.ScoredChunk, history []domain.ChatTurn, question string) []PromptMessage {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nAnswer the question based only on the following context:\n\n")
	b.WriteString(FormatContext(hits))

	messages := make([]PromptMessage, 0, len(history)+2)
	messages = append(messages, PromptMessage{Role: PromptRoleSystem, Content: b.String()})
	for _, turn := range history {
		role := PromptRoleUser
		if turn.Role == domain.ChatRoleAssistant {
			role = PromptRoleAssistant
		}
		messages = append(messages, PromptMessage{Role: role, Content: turn.Text})
	}
	messages = append(messages, PromptMessage{Role: PromptRoleUser, Content: question})
	return messages
}

// FormatContext joins retrieved chunk texts in rank order, separated by blank
// lines.
func FormatContext(hits []domain.ScoredChunk) string {
	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = hit.Chunk.Text
	}
	return strings.Join(parts, "\n\n")
}

// WindowHistory keeps the most recent maxTurns turns, rounded down to whole
// human/assistant pairs. maxTurns <= 0 keeps everything.
func WindowHistory(history []domain.ChatTurn, maxTurns int) []domain.ChatTurn {
	if maxTurns <= 0 || len(history) <= maxTurns {
		return history
	}
	keep := maxTurns - maxTurns%2
	if keep == 0 {
		return nil
	}
	return history[len(history)-keep:]
}

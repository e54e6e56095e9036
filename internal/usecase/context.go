// Package usecase contains application business logic services.
package usecase

import (
	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

// DefaultHistoryLimit is the number of prior messages included for the fixed channel.
const DefaultHistoryLimit = 10

// ContextAssembler builds the conversation sent to the completion backend.
type ContextAssembler struct{}

// Build returns [system, ...history oldest-first..., user].
//
// history is newest-first as delivered by a HistorySource. A nil history
// yields exactly the system turn and the new user turn. At most historyLimit
// entries are used (DefaultHistoryLimit when non-positive). A blank
// authorName sends text as-is.
func (ContextAssembler) Build(systemPrompt, authorName, text string, history []domain.HistoryEntry, historyLimit int) []domain.ConversationTurn {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}

	turns := make([]domain.ConversationTurn, 0, len(history)+2)
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleSystem, Content: systemPrompt})

	// reverse into chronological order
	for i := len(history) - 1; i >= 0; i-- {
		turns = append(turns, historyTurn(history[i]))
	}
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleUser, Content: speakerContent(authorName, text)})
	return turns
}

func historyTurn(e domain.HistoryEntry) domain.ConversationTurn {
	if e.IsBot {
		return domain.ConversationTurn{Role: domain.RoleAssistant, Content: e.Text}
	}
	return domain.ConversationTurn{Role: domain.RoleUser, Content: speakerContent(e.AuthorName, e.Text)}
}

func speakerContent(name, text string) string {
	if name == "" {
		return text
	}
	return name + ": " + text
}

package conversation

import (
	"strings"

	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

// Default_History_Limit caps the turns sent to a provider.
const Default_History_Limit = 20

// Stopped_Content replaces an assistant placeholder cancelled before any text arrived.
const Stopped_Content = "Generation stopped by user."

// Build_History turns stored messages into provider history. It drops turns a
// provider should not see (pending, failed, empty), merges consecutive turns
// from the same role, starts on a user turn, and keeps at most limit turns.
// A limit of 0 keeps everything.
func Build_History(msgs []stores.Message, limit int) []models.Turn {
	turns := make([]models.Turn, 0, len(msgs))
	for _, msg := range msgs {
		if !usable(msg) {
			continue
		}
		role := "user"
		if msg.Role == stores.RoleAssistant {
			role = "assistant"
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n\n" + msg.Content
			continue
		}
		turns = append(turns, models.Turn{Role: role, Content: msg.Content})
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return trimToUserStart(turns)
}

func usable(msg stores.Message) bool {
	if strings.TrimSpace(msg.Content) == "" {
		return false
	}
	if msg.Role != stores.RoleAssistant {
		return true
	}
	switch msg.Outcome {
	case stores.OutcomePending, stores.OutcomeError:
		return false
	case stores.OutcomeCancelled:
		return msg.Content != Stopped_Content
	}
	return true
}

// trimToUserStart drops leading assistant turns such as the welcome message.
func trimToUserStart(turns []models.Turn) []models.Turn {
	for i, t := range turns {
		if t.Role == "user" {
			return turns[i:]
		}
	}
	return []models.Turn{}
}

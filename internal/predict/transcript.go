package predict

import "medinsight/internal/api"

// DefaultGreeting opens every transcript that has no stored history.
const DefaultGreeting = "Hello! I'm your health assistant. How can I help you today?"

// TurnID identifies a turn for its whole life, so a reply lands on the
// placeholder it was meant for regardless of what else changed.
type TurnID uint64

// Turn is one chat message. Pending marks the assistant placeholder shown
// while a reply is outstanding.
type Turn struct {
	ID      TurnID
	User    bool
	Message string
	Pending bool
}

// transcript is an append-mostly arena of turns. Not safe for concurrent
// use; the route guards it.
type transcript struct {
	turns []Turn
	next  TurnID
}

func newTranscript(seed []api.ChatMessage) *transcript {
	t := &transcript{}
	if seed == nil {
		t.append(false, DefaultGreeting, false)
		return t
	}
	for _, m := range seed {
		t.append(m.User, m.Message, false)
	}
	return t
}

func (t *transcript) append(user bool, message string, pending bool) TurnID {
	t.next++
	t.turns = append(t.turns, Turn{ID: t.next, User: user, Message: message, Pending: pending})
	return t.next
}

func (t *transcript) index(id TurnID) int {
	for i := range t.turns {
		if t.turns[i].ID == id {
			return i
		}
	}
	return -1
}

// resolve fills a pending placeholder with its reply.
func (t *transcript) resolve(id TurnID, message string) bool {
	i := t.index(id)
	if i < 0 || !t.turns[i].Pending {
		return false
	}
	t.turns[i].Message = message
	t.turns[i].Pending = false
	return true
}

func (t *transcript) remove(id TurnID) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}
	t.turns = append(t.turns[:i], t.turns[i+1:]...)
	return true
}

func (t *transcript) hasPending() bool {
	for _, turn := range t.turns {
		if turn.Pending {
			return true
		}
	}
	return false
}

func (t *transcript) snapshot() []Turn {
	return append([]Turn(nil), t.turns...)
}

// wire renders the settled turns for the backend.
func (t *transcript) wire() []api.ChatMessage {
	out := make([]api.ChatMessage, 0, len(t.turns))
	for _, turn := range t.turns {
		if turn.Pending {
			continue
		}
		out = append(out, api.ChatMessage{User: turn.User, Message: turn.Message})
	}
	return out
}

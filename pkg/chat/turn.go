package chat

import (
	"strings"

	"github.com/google/uuid"
)

// Canonical speaker labels. Extraction normalizes chat-bubble descriptions
// ("Green Bubble", "Right Bubble", ...) down to these two, but persisted
// history may carry anything, so nothing below assumes the set is closed.
const (
	SpeakerMe   = "Me"
	SpeakerThem = "Them"
)

// Turn is a single message in a conversation. RelevanceScore is nil until the
// scoring model has run; a non-nil value is expected to lie in [-5, 5] but is
// only clamped at render time.
//
// ID is an opaque identifier assigned when the turn enters a TurnStore. It is
// stable across reorder and edit, never serialized, and exists so callers can
// address a turn independently of its display position.
type Turn struct {
	ID             string   `json:"-"`
	Speaker        string   `json:"speaker"`
	Message        string   `json:"message"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// NewTurn builds an unscored turn with a fresh id.
func NewTurn(speaker, message string) Turn {
	return Turn{ID: uuid.NewString(), Speaker: speaker, Message: message}
}

// Scored reports whether the turn carries a relevance score.
func (t Turn) Scored() bool { return t.RelevanceScore != nil }

// IsMine is the single place the "is this speaker me" heuristic lives.
// Persisted history uses several conventions ("Me", "A", "Right Bubble"), so
// the check is deliberately loose and must stay that way for old data.
func IsMine(speaker string) bool {
	return speaker == SpeakerMe || speaker == "A" || strings.Contains(speaker, "Right")
}

// Session is a conversation as edited in the UI. ID is nil until the first
// save; every later save overwrites the persisted copy rather than branching.
type Session struct {
	ID    *int64
	Title string
	Turns []Turn
}

// TurnStore owns the live ordered turn list for the open session. It holds no
// render or network logic; callers re-render after every mutation. All
// index-based operations bounds-check and no-op silently rather than panic,
// matching the always-valid-in-memory contract of the editing surface.
type TurnStore struct {
	turns []Turn
}

func NewTurnStore() *TurnStore {
	return &TurnStore{}
}

// Len returns the number of turns.
func (s *TurnStore) Len() int { return len(s.turns) }

// Turns returns a copy of the turn list in conversation order.
func (s *TurnStore) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Turn returns the turn at index, if valid.
func (s *TurnStore) Turn(index int) (Turn, bool) {
	if index < 0 || index >= len(s.turns) {
		return Turn{}, false
	}
	return s.turns[index], true
}

// IndexOf returns the display position of the turn with the given id, or -1.
func (s *TurnStore) IndexOf(id string) int {
	for i, t := range s.turns {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// InsertAt inserts a new empty-score turn at index, shifting later turns.
// The speaker alternates from the preceding turn (Me after Them and vice
// versa) and defaults to Me. Out-of-range indices are clamped.
func (s *TurnStore) InsertAt(index int, text string) Turn {
	if index < 0 {
		index = 0
	}
	if index > len(s.turns) {
		index = len(s.turns)
	}

	speaker := SpeakerMe
	if index > 0 {
		switch s.turns[index-1].Speaker {
		case SpeakerMe:
			speaker = SpeakerThem
		case SpeakerThem:
			speaker = SpeakerMe
		}
	}

	t := NewTurn(speaker, text)
	s.turns = append(s.turns, Turn{})
	copy(s.turns[index+1:], s.turns[index:])
	s.turns[index] = t
	return t
}

// MoveBy swaps the turn at index with its neighbor at index+direction.
// direction is -1 or +1; anything landing out of bounds is a silent no-op.
func (s *TurnStore) MoveBy(index, direction int) bool {
	next := index + direction
	if index < 0 || index >= len(s.turns) || next < 0 || next >= len(s.turns) {
		return false
	}
	s.turns[index], s.turns[next] = s.turns[next], s.turns[index]
	return true
}

// DeleteAt removes the turn at index; invalid indices are ignored.
func (s *TurnStore) DeleteAt(index int) bool {
	if index < 0 || index >= len(s.turns) {
		return false
	}
	s.turns = append(s.turns[:index], s.turns[index+1:]...)
	return true
}

// SetText replaces the message text only. An existing score is kept even
// though it may now be stale; re-analysis is the way to refresh it.
func (s *TurnStore) SetText(index int, text string) bool {
	if index < 0 || index >= len(s.turns) {
		return false
	}
	s.turns[index].Message = text
	return true
}

// ToggleSpeaker cycles Me -> Them -> Me. For any other label the speaker is
// reassigned from index parity (even index becomes Them), which is how the
// editing surface recovers turns extracted with unrecognized labels.
func (s *TurnStore) ToggleSpeaker(index int) bool {
	if index < 0 || index >= len(s.turns) {
		return false
	}
	switch s.turns[index].Speaker {
	case SpeakerMe:
		s.turns[index].Speaker = SpeakerThem
	case SpeakerThem:
		s.turns[index].Speaker = SpeakerMe
	default:
		if index%2 == 0 {
			s.turns[index].Speaker = SpeakerThem
		} else {
			s.turns[index].Speaker = SpeakerMe
		}
	}
	return true
}

// ReplaceAll swaps in a whole new turn list (after extraction, scoring, or
// loading a saved session). Turns without ids get one assigned.
func (s *TurnStore) ReplaceAll(turns []Turn) {
	s.turns = make([]Turn, len(turns))
	copy(s.turns, turns)
	for i := range s.turns {
		if s.turns[i].ID == "" {
			s.turns[i].ID = uuid.NewString()
		}
	}
}

// Clear empties the store.
func (s *TurnStore) Clear() {
	s.turns = nil
}

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/parley-cli/parley/internal/provider"
)

// Session holds the conversation state for one chat session: the live
// context, the archived history and the usage ledger.
type Session struct {
	ID          string
	CreatedAt   time.Time
	Context     *Context
	History     *History
	Ledger      *Ledger
	Compactions int

	folded bool
}

// New creates a session primed with the given turns.
func New(th Thresholds, primer ...provider.Message) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Context:   NewContext(primer...),
		History:   &History{},
		Ledger:    NewLedger(th),
	}
}

// Fold moves the still-live context into the history and returns the full
// history. Calling it again returns the same history without folding twice.
func (s *Session) Fold() []provider.Message {
	if !s.folded {
		s.History.Archive(s.Context.Snapshot()...)
		s.folded = true
	}
	return s.History.Turns()
}

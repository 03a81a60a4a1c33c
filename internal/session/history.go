package session

import "github.com/parley-cli/parley/internal/provider"

// History is the append-only record of everything said in a session,
// independent of compaction. It only feeds the transcript export.
type History struct {
	msgs []provider.Message
}

// Archive appends turns in the order given.
func (h *History) Archive(msgs ...provider.Message) {
	h.msgs = append(h.msgs, msgs...)
}

// Turns returns a copy of the archived turns.
func (h *History) Turns() []provider.Message {
	out := make([]provider.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *History) Len() int { return len(h.msgs) }

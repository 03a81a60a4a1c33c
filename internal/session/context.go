package session

import "github.com/parley-cli/parley/internal/provider"

// Context is the live, ordered set of turns sent to the model on every
// request. Index 0 is always the system priming turn.
type Context struct {
	msgs []provider.Message
}

// NewContext starts a context from the priming turns. The first turn must be
// the system turn.
func NewContext(primer ...provider.Message) *Context {
	c := &Context{msgs: make([]provider.Message, 0, len(primer)+8)}
	c.msgs = append(c.msgs, primer...)
	return c
}

// Append adds msg to the end of the context.
func (c *Context) Append(msg provider.Message) {
	c.msgs = append(c.msgs, msg)
}

// Snapshot returns a copy of the context that callers may keep or modify.
func (c *Context) Snapshot() []provider.Message {
	out := make([]provider.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of live turns.
func (c *Context) Len() int { return len(c.msgs) }

// Truncate drops every turn at index n and beyond. It never drops turn 0.
func (c *Context) Truncate(n int) {
	if n < 1 {
		n = 1
	}
	if n >= len(c.msgs) {
		return
	}
	clear(c.msgs[n:])
	c.msgs = c.msgs[:n]
}

// ReplaceWithSummary keeps the system turn, appends an assistant turn
// carrying summary's content and returns the turns it discarded, oldest
// first. The context holds exactly two turns afterwards.
func (c *Context) ReplaceWithSummary(summary provider.Message) []provider.Message {
	if len(c.msgs) == 0 {
		c.msgs = append(c.msgs, provider.Assistant(summary.Content))
		return nil
	}
	discarded := make([]provider.Message, len(c.msgs)-1)
	copy(discarded, c.msgs[1:])

	next := make([]provider.Message, 2, 8)
	next[0] = c.msgs[0]
	next[1] = provider.Assistant(summary.Content)
	c.msgs = next
	return discarded
}

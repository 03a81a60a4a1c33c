package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/parley-cli/parley/internal/provider"
)

// DefaultInstruction asks the model to condense the conversation. {min} and
// {max} are replaced with the configured shrink range.
const DefaultInstruction = `Summarize our conversation so far. The summary replaces the conversation ` +
	`as your only memory of it, so keep every fact, decision and open question you need to carry on ` +
	`in a context-aware way. Make the summary {min} to {max}% shorter than the conversation itself.`

// ShrinkRange is the target reduction, in percent, asked of the summary.
type ShrinkRange struct {
	Min int
	Max int
}

func (r ShrinkRange) Valid() bool {
	return r.Min > 0 && r.Max < 100 && r.Min <= r.Max
}

// Compactor replaces a session's context with a model-generated summary.
type Compactor struct {
	Completer   provider.Completer
	Model       string
	Shrink      ShrinkRange
	Instruction string // empty = DefaultInstruction
}

// Compaction describes one successful compaction.
type Compaction struct {
	Summary          string
	Archived         int // turns moved from the context into the history
	WindowTokens     int // usage of the summarization call; the new window's start
	PromptTokens     int
	CompletionTokens int
}

// InstructionText renders the summarization instruction for c.Shrink.
func (c *Compactor) InstructionText() string {
	tmpl := c.Instruction
	if tmpl == "" {
		tmpl = DefaultInstruction
	}
	return strings.NewReplacer(
		"{min}", strconv.Itoa(c.Shrink.Min),
		"{max}", strconv.Itoa(c.Shrink.Max),
	).Replace(tmpl)
}

// Compact asks the model to summarize s.Context and swaps the summary in.
//
// The instruction turn is ephemeral: it is removed again whether or not the
// call succeeds. On failure nothing else is touched (context, history and
// ledger are exactly as before) and the error is returned unchanged.
func (c *Compactor) Compact(ctx context.Context, s *Session) (Compaction, error) {
	before := s.Context.Len()
	s.Context.Append(provider.System(c.InstructionText()))
	req := s.Context.Snapshot()
	s.Context.Truncate(before)

	reply, err := c.Completer.Chat(ctx, c.Model, req)
	if err != nil {
		return Compaction{}, fmt.Errorf("compaction: %w", err)
	}
	summary := strings.TrimSpace(reply.Text)
	if summary == "" {
		return Compaction{}, fmt.Errorf("compaction: %w",
			&provider.ResponseParsingError{Provider: c.Completer.Name(), Field: "summary text"})
	}

	discarded := s.Context.ReplaceWithSummary(provider.Assistant(summary))
	s.History.Archive(discarded...)
	s.Ledger.ResetWindow()
	s.Ledger.RecordUsage(reply.TotalTokens)
	s.Compactions++

	return Compaction{
		Summary:          summary,
		Archived:         len(discarded),
		WindowTokens:     reply.TotalTokens,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
	}, nil
}

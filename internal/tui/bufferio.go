package tui

import (
	"context"
	"io"
)

// EventKind names one kind of output captured by BufferIO.
type EventKind string

const (
	EventPrompt EventKind = "prompt"
	EventReply  EventKind = "reply"
	EventSystem EventKind = "system"
	EventWarn   EventKind = "warn"
	EventError  EventKind = "error"
)

// Event is one captured output.
type Event struct {
	Kind EventKind
	Text string
}

// BufferIO replays scripted input lines and records every output instead
// of rendering it. Once the script is exhausted ReadLine reports io.EOF.
type BufferIO struct {
	lines  []string
	events []Event

	// OnRead, when set, runs before each read with the number of lines
	// consumed so far. Tests use it to cancel mid-session.
	OnRead func(n int)
	reads  int
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that will return lines in order.
func NewBufferIO(lines ...string) *BufferIO {
	return &BufferIO{lines: lines}
}

func (b *BufferIO) ReadLine(ctx context.Context, prompt string) (string, error) {
	if b.OnRead != nil {
		b.OnRead(b.reads)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt != "" {
		b.events = append(b.events, Event{EventPrompt, prompt})
	}
	if b.reads >= len(b.lines) {
		return "", io.EOF
	}
	line := b.lines[b.reads]
	b.reads++
	return line, nil
}

func (b *BufferIO) Reply(text string)         { b.add(EventReply, text) }
func (b *BufferIO) SystemMessage(text string) { b.add(EventSystem, text) }
func (b *BufferIO) Warn(text string)          { b.add(EventWarn, text) }
func (b *BufferIO) Error(msg string)          { b.add(EventError, msg) }

func (b *BufferIO) add(kind EventKind, text string) {
	b.events = append(b.events, Event{kind, text})
}

// Events returns everything captured so far.
func (b *BufferIO) Events() []Event {
	return append([]Event(nil), b.events...)
}

// Texts returns the text of every captured event of the given kind.
func (b *BufferIO) Texts(kind EventKind) []string {
	var out []string
	for _, e := range b.events {
		if e.Kind == kind {
			out = append(out, e.Text)
		}
	}
	return out
}

// Package tui defines the IO interface between the chat loop and the
// terminal, plus PlainIO (line-oriented terminal) and BufferIO (scripted,
// for tests and non-interactive callers).
package tui

import "context"

// IO is the contract between the chat loop and the UI layer.
// Every method maps to a distinct visual event.
type IO interface {
	// ReadLine shows prompt and blocks until the user submits a line.
	// Returns ("", io.EOF) when input is exhausted and ctx.Err() when ctx
	// is cancelled first.
	ReadLine(ctx context.Context, prompt string) (string, error)

	// Reply displays an assistant reply.
	Reply(text string)

	// SystemMessage displays a neutral notice (greeting, token usage,
	// export location).
	SystemMessage(text string)

	// Warn displays a notice the user should act on.
	Warn(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)
}

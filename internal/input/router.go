// Package input turns raw terminal lines into chat inputs, resolving the
// --file command and the quit token.
package input

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/parley-cli/parley/internal/ingest"
)

// DefaultQuitToken ends the session when typed on its own.
const DefaultQuitToken = "q"

var fileCommand = regexp.MustCompile(`^--file `)

// Kind tells a message from a quit request.
type Kind int

const (
	KindMessage Kind = iota
	KindQuit
)

func (k Kind) String() string {
	if k == KindQuit {
		return "quit"
	}
	return "message"
}

// Input is the outcome of one exchange with the user.
type Input struct {
	Kind Kind
	Text string // effective message: the trimmed line or the ingested file
	Raw  string // first raw line read for this input
	File string // path of the ingested file, if any
}

// LineReader reads one line of user input. It returns io.EOF when input is
// exhausted and ctx.Err() when cancelled.
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// Ingester renders a file as message text.
type Ingester interface {
	Ingest(path string) (string, error)
}

// Router reads lines until it can produce an Input.
type Router struct {
	Lines     LineReader
	Files     Ingester
	QuitToken string

	// OnIngestError is told about every file that could not be read before
	// the router asks for another line. Optional.
	OnIngestError func(err error)
}

// Next reads the next input shown after prompt. Ingestion failures are
// reported and retried, never returned; reader errors and cancellation are.
func (r *Router) Next(ctx context.Context, prompt string) (Input, error) {
	var raw string
	first := true
	for {
		line, err := r.Lines.ReadLine(ctx, prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Input{Kind: KindQuit, Raw: raw}, nil
			}
			return Input{}, err
		}
		if first {
			raw = line
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		first = false

		if text == r.quitToken() {
			return Input{Kind: KindQuit, Text: text, Raw: raw}, nil
		}
		if !fileCommand.MatchString(text) {
			return Input{Kind: KindMessage, Text: text, Raw: raw}, nil
		}

		path := filePath(text)
		content, err := r.Files.Ingest(path)
		if err == nil {
			return Input{Kind: KindMessage, Text: content, Raw: raw, File: path}, nil
		}
		var ie *ingest.Error
		if !errors.As(err, &ie) {
			return Input{}, err
		}
		if r.OnIngestError != nil {
			r.OnIngestError(err)
		}
		// Retry lines are read without a prompt.
		prompt = ""
	}
}

func (r *Router) quitToken() string {
	if r.QuitToken == "" {
		return DefaultQuitToken
	}
	return r.QuitToken
}

// filePath extracts the path argument of a --file command.
func filePath(text string) string {
	p := strings.TrimSpace(fileCommand.ReplaceAllString(text, ""))
	if len(p) >= 2 {
		if (p[0] == '"' && p[len(p)-1] == '"') || (p[0] == '\'' && p[len(p)-1] == '\'') {
			p = p[1 : len(p)-1]
		}
	}
	return p
}

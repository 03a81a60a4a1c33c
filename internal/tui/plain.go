package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	replyPrefixStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

type lineResult struct {
	line string
	err  error
}

// PlainIO implements IO on a line-oriented terminal or pipe.
//
// Lines are read by a background goroutine so that ReadLine can return as
// soon as ctx is cancelled; the pending read is abandoned, not interrupted.
type PlainIO struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	styled bool

	start sync.Once
	lines chan lineResult

	md *glamour.TermRenderer
}

// NewPlainIO creates a PlainIO on stdin/stdout/stderr. Styling and markdown
// rendering are enabled when stdout is a terminal.
func NewPlainIO() *PlainIO {
	p := NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr)
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		p.styled = true
		width := 80
		if w, _, err := term.GetSize(fd); err == nil && w > 20 {
			width = w
		}
		if r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width-4),
		); err == nil {
			p.md = r
		}
	}
	return p
}

// NewPlainIOWith creates an unstyled PlainIO on the given streams.
func NewPlainIOWith(in io.Reader, out, errOut io.Writer) *PlainIO {
	return &PlainIO{
		in:     in,
		out:    out,
		errOut: errOut,
		lines:  make(chan lineResult),
	}
}

func (p *PlainIO) ReadLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.start.Do(func() { go p.readLoop() })

	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	}
}

// readLoop feeds p.lines until the input ends, then closes it.
func (p *PlainIO) readLoop() {
	defer close(p.lines)
	s := bufio.NewScanner(p.in)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		p.lines <- lineResult{line: s.Text()}
	}
	if err := s.Err(); err != nil {
		p.lines <- lineResult{err: err}
	}
}

func (p *PlainIO) Reply(text string) {
	prefix := "$_$: "
	if p.styled {
		prefix = replyPrefixStyle.Render(prefix)
	}
	if p.md != nil {
		if rendered, err := p.md.Render(text); err == nil {
			fmt.Fprintf(p.out, "%s\n%s", prefix, strings.TrimLeft(rendered, "\n"))
			return
		}
	}
	fmt.Fprintf(p.out, "%s%s\n", prefix, text)
}

func (p *PlainIO) SystemMessage(text string) {
	if p.styled {
		text = systemStyle.Render(text)
	}
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Warn(text string) {
	if p.styled {
		text = warnStyle.Render(text)
	}
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	if p.styled {
		msg = errorStyle.Render(msg)
	}
	fmt.Fprintln(p.errOut, msg)
}

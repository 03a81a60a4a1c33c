package selector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = errors.New("selection cancelled")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// pickModel is the bubbletea model behind PickTUI.
type pickModel struct {
	title  string
	items  []string
	cursor int
	chosen int // -1 until a choice is made
	done   bool
}

func newPickModel(title string, items []string) pickModel {
	return pickModel{title: title, items: items, chosen: -1}
}

func (m pickModel) Init() tea.Cmd { return nil }

func (m pickModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.done = true
		return m, tea.Quit
	case tea.KeyUp, tea.KeyShiftTab:
		if m.cursor > 0 {
			m.cursor--
		}
	case tea.KeyDown, tea.KeyTab:
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case tea.KeyEnter:
		m.chosen = m.cursor
		m.done = true
		return m, tea.Quit
	case tea.KeyRunes:
		// Digits jump to the numbered entry.
		if len(key.Runes) == 1 && key.Runes[0] >= '1' && key.Runes[0] <= '9' {
			if idx := int(key.Runes[0] - '1'); idx < len(m.items) {
				m.cursor = idx
			}
		}
		switch string(key.Runes) {
		case "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "q":
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickModel) View() string {
	if m.done {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")
	for i, item := range m.items {
		line := fmt.Sprintf("%2d. %s", i+1, item)
		if i == m.cursor {
			sb.WriteString(cursorStyle.Render("> " + line))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\n")
	sb.WriteString(hintStyle.Render("↑/↓ or 1-9 to move, enter to select, esc to cancel"))
	return sb.String()
}

// PickTUI returns a Picker that shows an arrow-key menu on in/out.
func PickTUI(in io.Reader, out io.Writer) Picker {
	return func(ctx context.Context, title string, items []string) (int, error) {
		p := tea.NewProgram(newPickModel(title, items),
			tea.WithContext(ctx),
			tea.WithInput(in),
			tea.WithOutput(out),
		)
		final, err := p.Run()
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("picker: %w", err)
		}
		m, ok := final.(pickModel)
		if !ok || m.chosen < 0 {
			return 0, ErrCancelled
		}
		return m.chosen, nil
	}
}

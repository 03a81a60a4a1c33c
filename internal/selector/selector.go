// Package selector asks the user to pick a model and a persona before a
// session starts.
package selector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/parley-cli/parley/internal/config"
	"github.com/parley-cli/parley/internal/tui"
)

// CustomGreeting greets the user for a persona entered by hand.
const CustomGreeting = "How can I help you?"

var nonNumeric = regexp.MustCompile(`[^0-9+-]`)

// Picker chooses one of items and returns its index.
type Picker func(ctx context.Context, title string, items []string) (int, error)

// Selector runs the selection prompts over a tui.IO.
type Selector struct {
	IO tui.IO

	// Pick replaces the numbered prompt, e.g. with PickTUI on a terminal.
	// Optional.
	Pick Picker
}

// PickModel asks for one model of the catalog.
func (s *Selector) PickModel(ctx context.Context, models []config.Model) (config.Model, error) {
	if len(models) == 0 {
		return config.Model{}, fmt.Errorf("no models to pick from")
	}
	items := make([]string, len(models))
	for i, m := range models {
		items[i] = fmt.Sprintf("%-16s InputToken: $%-8.2f OutputToken: $%-8.2f", m.Name, m.InputPerMillion, m.OutputPerMillion)
	}
	idx, err := s.choose(ctx, "Pick the model by entering the corresponding number", items, len(items))
	if err != nil {
		return config.Model{}, err
	}
	return models[idx], nil
}

// PickPersona asks for one persona of the catalog or a custom one. The
// custom entry is listed last; choosing it prompts for a role and a prompt.
func (s *Selector) PickPersona(ctx context.Context, personas []config.Persona) (config.Persona, error) {
	items := make([]string, 0, len(personas)+1)
	for _, p := range personas {
		items = append(items, p.Role)
	}
	items = append(items, "Enter Custom")

	idx, err := s.choose(ctx, "Pick the persona by entering the corresponding number", items, len(personas))
	if err != nil {
		return config.Persona{}, err
	}
	if idx < len(personas) {
		return personas[idx], nil
	}

	s.IO.SystemMessage("What is the expected role of this agent?")
	role, err := s.IO.ReadLine(ctx, "")
	if err != nil {
		return config.Persona{}, err
	}
	s.IO.SystemMessage("How would you describe its character? How should the interaction go? What should be emphasized or avoided?")
	prompt, err := s.IO.ReadLine(ctx, "")
	if err != nil {
		return config.Persona{}, err
	}
	return config.Persona{
		Role:     strings.TrimSpace(role),
		Prompt:   strings.TrimSpace(prompt),
		Greeting: CustomGreeting,
	}, nil
}

// choose returns a 0-based index into items. With the numbered prompt,
// answers are re-asked until they are a number in 1..len(items); bound is
// the count quoted in the out-of-range hint.
func (s *Selector) choose(ctx context.Context, title string, items []string, bound int) (int, error) {
	if s.Pick != nil {
		return s.Pick(ctx, title, items)
	}

	s.IO.SystemMessage(title)
	for i, item := range items {
		s.IO.SystemMessage(fmt.Sprintf("[%2d]\t%s", i+1, item))
	}
	for {
		line, err := s.IO.ReadLine(ctx, "")
		if err != nil {
			return 0, err
		}
		choice := strings.TrimSpace(line)
		if choice == "" || nonNumeric.MatchString(choice) {
			s.IO.Warn("Numbers only")
			continue
		}
		n, err := strconv.Atoi(choice)
		if err != nil {
			s.IO.Warn("Numbers only")
			continue
		}
		if n < 1 || n > len(items) {
			s.IO.Warn(fmt.Sprintf("Expect 1 to %d", bound))
			continue
		}
		return n - 1, nil
	}
}

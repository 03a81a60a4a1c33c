package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parley-cli/parley/internal/chat"
	"github.com/parley-cli/parley/internal/config"
	"github.com/parley-cli/parley/internal/ingest"
	"github.com/parley-cli/parley/internal/logging"
	"github.com/parley-cli/parley/internal/selector"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/transcript"
	"github.com/parley-cli/parley/internal/tui"
)

// Exit code for a session ended by SIGINT/SIGTERM.
const exitInterrupted = 130

// runChat starts one interactive chat session.
func runChat(cmd *cobra.Command) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	p, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ui := tui.NewPlainIO()
	sel := &selector.Selector{IO: ui}
	// The menu reads stdin directly; it must finish before PlainIO's
	// reader starts, which happens on the first ReadLine.
	if !plainPicker && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		sel.Pick = selector.PickTUI(os.Stdin, os.Stdout)
	}

	model, persona, err := choose(ctx, cfg, sel)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return &exitError{code: exitInterrupted}
		case errors.Is(err, io.EOF), errors.Is(err, selector.ErrCancelled):
			// Nothing was said yet, so there is nothing to export.
			return nil
		default:
			return err
		}
	}
	ui.SystemMessage(">Model = " + model.Name)

	sessionID := uuid.NewString()
	logger, err := logging.Open(cfg.Log.Dir, sessionID, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: event log disabled: %v\n", err)
		logger = logging.Nop()
	}
	defer logger.Close()

	ctl := chat.New(p, ui, ingest.New(),
		&transcript.Exporter{Dir: cfg.Export.Dir, Overwrite: cfg.Export.Overwrite},
		logger.Logger,
		chat.Options{
			SessionID: sessionID,
			Model:     model.Name,
			Persona: chat.Persona{
				Role:     persona.Role,
				Prompt:   persona.Prompt,
				Greeting: persona.Greeting,
			},
			Thresholds: session.Thresholds{
				Throttle:    cfg.Thresholds.Throttle,
				Termination: cfg.Thresholds.Termination,
			},
			Shrink: session.ShrinkRange{
				Min: cfg.Compaction.ShrinkMinPercent,
				Max: cfg.Compaction.ShrinkMaxPercent,
			},
			Instruction: cfg.Compaction.Instruction,
			QuitToken:   cfg.QuitToken,
			Pricing:     pricing(cfg.Models),
		},
	)

	res := ctl.Run(ctx)
	switch {
	case res.Reason == chat.ReasonInterrupted:
		return &exitError{code: exitInterrupted, err: res.Err}
	case res.Reason == chat.ReasonError, res.Err != nil:
		return &exitError{code: 1, err: res.Err}
	}
	return nil
}

// choose resolves the model and persona from flags, falling back to asking.
func choose(ctx context.Context, cfg *config.Config, sel *selector.Selector) (config.Model, config.Persona, error) {
	var model config.Model
	if modelFlag != "" {
		m, ok := cfg.Model(modelFlag)
		if !ok {
			// Uncatalogued models are allowed; they are just not priced.
			m = config.Model{Name: modelFlag}
		}
		model = m
	} else {
		m, err := sel.PickModel(ctx, cfg.Models)
		if err != nil {
			return config.Model{}, config.Persona{}, err
		}
		model = m
	}

	if personaFlag != "" {
		for _, p := range cfg.Personas {
			if strings.EqualFold(p.Role, personaFlag) {
				return model, p, nil
			}
		}
		return config.Model{}, config.Persona{}, fmt.Errorf("unknown persona %q", personaFlag)
	}
	persona, err := sel.PickPersona(ctx, cfg.Personas)
	if err != nil {
		return config.Model{}, config.Persona{}, err
	}
	return model, persona, nil
}

func pricing(models []config.Model) map[string]chat.Pricing {
	out := make(map[string]chat.Pricing, len(models))
	for _, m := range models {
		out[m.Name] = chat.Pricing{
			InputPerMillion:  m.InputPerMillion,
			OutputPerMillion: m.OutputPerMillion,
		}
	}
	return out
}

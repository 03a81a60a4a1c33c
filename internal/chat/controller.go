// Package chat runs one interactive chat session: it sends the rolling
// context to the model, compacts it when the token window overflows, stops
// at the session budget and always exports the transcript on the way out.
package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/parley-cli/parley/internal/ingest"
	"github.com/parley-cli/parley/internal/input"
	"github.com/parley-cli/parley/internal/logging"
	"github.com/parley-cli/parley/internal/provider"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/tui"
)

const userPrompt = "> "

// Reason says why a session ended.
type Reason int

const (
	ReasonUserQuit Reason = iota + 1
	ReasonThresholdExceeded
	ReasonError
	ReasonInterrupted
)

func (r Reason) String() string {
	switch r {
	case ReasonUserQuit:
		return "user_quit"
	case ReasonThresholdExceeded:
		return "threshold_exceeded"
	case ReasonError:
		return "error"
	case ReasonInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Persona primes the conversation.
type Persona struct {
	Role     string
	Prompt   string
	Greeting string
}

// Primer returns the two turns every session starts with.
func (p Persona) Primer() []provider.Message {
	return []provider.Message{
		provider.System(fmt.Sprintf("Be as described here: %s. %s", p.Role, p.Prompt)),
		provider.Assistant(p.Greeting),
	}
}

// Options configures a Controller. Nothing below cmd reads configuration on
// its own; everything a session needs arrives here.
type Options struct {
	SessionID   string // empty = generated
	Model       string
	Persona     Persona
	Thresholds  session.Thresholds
	Shrink      session.ShrinkRange
	Instruction string // summarization template; empty = session.DefaultInstruction
	QuitToken   string
	Pricing     map[string]Pricing
}

// Exporter persists the session transcript.
type Exporter interface {
	Export(name string, turns []provider.Message) (string, error)
}

// Result is the outcome of a finished session.
type Result struct {
	Reason     Reason
	Cumulative int
	Cost       float64
	Transcript string // path of the exported transcript, empty if export failed
	Err        error  // session error combined with any export error
}

// Controller drives one session from priming to termination.
type Controller struct {
	completer provider.Completer
	io        tui.IO
	router    *input.Router
	exporter  Exporter
	log       *zap.Logger
	opts      Options

	sess      *session.Session
	compactor *session.Compactor
	costs     *CostTracker

	name     string // raw first input line; names the transcript
	exported bool
	done     bool
	result   Result
}

// New creates a Controller. files may be nil to disable --file; log may be
// nil.
func New(c provider.Completer, ui tui.IO, files input.Ingester, exp Exporter, log *zap.Logger, opts Options) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if files == nil {
		files = noFiles{}
	}
	sess := session.New(opts.Thresholds, opts.Persona.Primer()...)
	if opts.SessionID != "" {
		sess.ID = opts.SessionID
	}

	ctl := &Controller{
		completer: c,
		io:        ui,
		exporter:  exp,
		log:       log,
		opts:      opts,
		sess:      sess,
		compactor: &session.Compactor{
			Completer:   c,
			Model:       opts.Model,
			Shrink:      opts.Shrink,
			Instruction: opts.Instruction,
		},
		costs: NewCostTracker(opts.Pricing),
	}
	ctl.router = &input.Router{
		Lines:         ui,
		Files:         files,
		QuitToken:     opts.QuitToken,
		OnIngestError: ctl.reportIngestError,
	}
	return ctl
}

// Session exposes the session state, mainly for inspection after Run.
func (c *Controller) Session() *session.Session { return c.sess }

// Run executes the session until it terminates and returns why. The
// transcript is exported exactly once whichever way the session ends.
func (c *Controller) Run(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			c.log.Error("panic", zap.Error(err), zap.Stack("stack"))
			res = c.terminate(ReasonError, err)
		}
	}()

	c.log.Info(logging.EventSessionStart,
		zap.String("model", c.opts.Model),
		zap.String("persona", c.opts.Persona.Role),
		zap.Int("throttle", c.opts.Thresholds.Throttle),
		zap.Int("termination", c.opts.Thresholds.Termination),
	)

	reason, err := c.loop(ctx)
	return c.terminate(reason, err)
}

func (c *Controller) loop(ctx context.Context) (Reason, error) {
	c.io.Reply(c.opts.Persona.Greeting)

	in, err := c.router.Next(ctx, userPrompt)
	if err != nil {
		return c.classify(ctx, err)
	}
	c.name = in.Raw
	if in.Kind == input.KindQuit {
		return ReasonUserQuit, nil
	}
	c.appendUser(in)

	for {
		reply, err := c.completer.Chat(ctx, c.opts.Model, c.sess.Context.Snapshot())
		if err != nil {
			return c.classify(ctx, err)
		}
		c.sess.Context.Append(provider.Assistant(reply.Text))
		c.sess.Ledger.RecordUsage(reply.TotalTokens)
		c.costs.Record(CallTurn, c.opts.Model, reply.PromptTokens, reply.CompletionTokens)
		c.log.Info(logging.EventAssistantReply,
			zap.Int("chars", len(reply.Text)),
			zap.Int("total_tokens", reply.TotalTokens),
			zap.Int("window", c.sess.Ledger.Window()),
			zap.Int("cumulative", c.sess.Ledger.Cumulative()),
		)

		if c.sess.Ledger.ExceedsThrottle() {
			if err := c.compact(ctx); err != nil {
				return c.classify(ctx, err)
			}
		}

		if c.sess.Ledger.ExceedsTermination() {
			c.io.Warn("It is likely you have reached or exceeded the termination threshold!")
			c.log.Warn(logging.EventThresholdExceeded,
				zap.Int("cumulative", c.sess.Ledger.Cumulative()),
				zap.Int("termination", c.opts.Thresholds.Termination),
			)
			return ReasonThresholdExceeded, nil
		}

		c.io.Reply(reply.Text)

		in, err := c.router.Next(ctx, userPrompt)
		if err != nil {
			return c.classify(ctx, err)
		}
		if in.Kind == input.KindQuit {
			return ReasonUserQuit, nil
		}
		c.appendUser(in)
	}
}

func (c *Controller) appendUser(in input.Input) {
	c.sess.Context.Append(provider.User(in.Text))
	c.log.Info(logging.EventUserMessage,
		zap.Int("chars", len(in.Text)),
		zap.String("file", in.File),
	)
}

func (c *Controller) compact(ctx context.Context) error {
	window := c.sess.Ledger.Window()
	res, err := c.compactor.Compact(ctx, c.sess)
	if err != nil {
		c.log.Error(logging.EventCompactionFailed, zap.Int("window", window), zap.Error(err))
		return err
	}
	c.costs.Record(CallCompaction, c.opts.Model, res.PromptTokens, res.CompletionTokens)
	c.log.Info(logging.EventCompaction,
		zap.Int("window_before", window),
		zap.Int("window_after", res.WindowTokens),
		zap.Int("archived_turns", res.Archived),
		zap.Int("compactions", c.sess.Compactions),
	)
	return nil
}

// classify maps a loop error to a termination reason. Cancellation wins
// over whatever error the cancelled call produced.
func (c *Controller) classify(ctx context.Context, err error) (Reason, error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ReasonInterrupted, err
	}
	return ReasonError, err
}

func (c *Controller) reportIngestError(err error) {
	c.io.Error(fmt.Sprintf("Could not read file: %v. Enter another --file, a message, or %s to quit.",
		err, c.quitToken()))
}

func (c *Controller) quitToken() string {
	if c.opts.QuitToken == "" {
		return input.DefaultQuitToken
	}
	return c.opts.QuitToken
}

// terminate folds the live context into the history, exports it once and
// reports the outcome. Calling it again returns the first result.
func (c *Controller) terminate(reason Reason, err error) Result {
	if c.done {
		return c.result
	}

	var path string
	var exportErr error
	if !c.exported {
		c.exported = true
		turns := c.sess.Fold()
		path, exportErr = c.exporter.Export(c.name, turns)
		if exportErr != nil {
			exportErr = fmt.Errorf("export transcript: %w", exportErr)
		}
		c.log.Info(logging.EventExport,
			zap.String("path", path),
			zap.Int("turns", len(turns)),
			zap.Error(exportErr),
		)
	}

	c.reportReason(reason, err)
	cumulative := c.sess.Ledger.Cumulative()
	c.io.SystemMessage(fmt.Sprintf("Accumulated Token Usage: %d", cumulative))
	c.io.SystemMessage(c.costs.Summary())
	if exportErr != nil {
		c.io.Error(exportErr.Error())
	} else if path != "" {
		c.io.SystemMessage("Exported to " + path)
	}

	// Cancellation is the reason, not a failure.
	if reason == ReasonInterrupted {
		err = nil
	}
	c.result = Result{
		Reason:     reason,
		Cumulative: cumulative,
		Cost:       c.costs.Total(),
		Transcript: path,
		Err:        multierr.Append(err, exportErr),
	}
	c.done = true

	c.log.Info(logging.EventSessionEnd,
		zap.Stringer("reason", reason),
		zap.Int("cumulative", cumulative),
		zap.Float64("cost", c.result.Cost),
		zap.Int("compactions", c.sess.Compactions),
		zap.Error(c.result.Err),
	)
	return c.result
}

func (c *Controller) reportReason(reason Reason, err error) {
	switch reason {
	case ReasonInterrupted:
		c.io.Warn("Interrupted.")
	case ReasonError:
		var reqErr *provider.RequestError
		var parseErr *provider.ResponseParsingError
		switch {
		case errors.As(err, &reqErr):
			c.io.Error("Request error: " + err.Error())
		case errors.As(err, &parseErr):
			c.io.Error("Parsing error: " + err.Error())
		default:
			c.io.Error(fmt.Sprintf("Unexpected error: %v", err))
		}
	}
}

type noFiles struct{}

func (noFiles) Ingest(path string) (string, error) {
	return "", &ingest.Error{Kind: ingest.UnsupportedExtension, Path: path, Err: errors.New("file input is disabled")}
}

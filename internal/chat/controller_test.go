package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/parley-cli/parley/internal/ingest"
	"github.com/parley-cli/parley/internal/provider"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/tui"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// step is one scripted completion: a reply, an error, or a hook that runs
// before the call returns.
type step struct {
	text   string
	tokens int
	err    error
	before func()
	panic  bool
}

type scriptedCompleter struct {
	steps []step
	calls [][]provider.Message
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Chat(ctx context.Context, _ string, msgs []provider.Message) (provider.Reply, error) {
	i := len(s.calls)
	s.calls = append(s.calls, msgs)
	if i >= len(s.steps) {
		return provider.Reply{}, errors.New("script exhausted")
	}
	st := s.steps[i]
	if st.before != nil {
		st.before()
	}
	if st.panic {
		panic("backend exploded")
	}
	if err := ctx.Err(); err != nil {
		return provider.Reply{}, err
	}
	if st.err != nil {
		return provider.Reply{}, st.err
	}
	return provider.Reply{
		Text:             st.text,
		PromptTokens:     st.tokens / 2,
		CompletionTokens: st.tokens - st.tokens/2,
		TotalTokens:      st.tokens,
	}, nil
}

type recordingExporter struct {
	calls int
	name  string
	turns []provider.Message
	err   error
}

func (e *recordingExporter) Export(name string, turns []provider.Message) (string, error) {
	e.calls++
	e.name = name
	e.turns = turns
	if e.err != nil {
		return "", e.err
	}
	return "output/" + name + ".txt", nil
}

type fakeFiles map[string]string

func (f fakeFiles) Ingest(path string) (string, error) {
	if c, ok := f[path]; ok {
		return c, nil
	}
	return "", &ingest.Error{Kind: ingest.NotFound, Path: path}
}

func options(throttle, termination int) Options {
	return Options{
		Model:      "gpt-4o",
		Persona:    Persona{Role: "Tutor", Prompt: "Teach.", Greeting: "Hello!"},
		Thresholds: session.Thresholds{Throttle: throttle, Termination: termination},
		Shrink:     session.ShrinkRange{Min: 30, Max: 50},
		Pricing:    map[string]Pricing{"gpt-4o": {InputPerMillion: 2.5, OutputPerMillion: 10}},
	}
}

var (
	system   = provider.System("Be as described here: Tutor. Teach.")
	greeting = provider.Assistant("Hello!")
)

func TestRunCompactsOnlyWhenWindowOverflows(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{
		{text: "a1", tokens: 50},
		{text: "a2", tokens: 40},
		{text: "a3", tokens: 30}, // window 120 > 100
		{text: "sum", tokens: 20},
		{text: "a4", tokens: 10},
	}}
	ui := tui.NewBufferIO("q1", "q2", "q3", "q4", "q")
	exp := &recordingExporter{}
	ctl := New(completer, ui, nil, exp, nil, options(100, 1000))

	res := ctl.Run(context.Background())

	if res.Reason != ReasonUserQuit || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Cumulative != 150 {
		t.Errorf("cumulative = %d, want 150", res.Cumulative)
	}
	if ctl.Session().Compactions != 1 {
		t.Errorf("expected exactly one compaction, got %d", ctl.Session().Compactions)
	}
	if ctl.Session().Ledger.Window() != 30 {
		t.Errorf("window = %d, want 30 (summary 20 + a4 10)", ctl.Session().Ledger.Window())
	}

	// The fourth call is the summarization request: full context plus the instruction.
	sumReq := completer.calls[3]
	if len(sumReq) != 9 || sumReq[8].Role != provider.RoleSystem {
		t.Fatalf("unexpected summarization request %v", sumReq)
	}
	// The fifth call sees the compacted context.
	wantTurn4 := []provider.Message{system, provider.Assistant("sum"), provider.User("q4")}
	if diff := cmp.Diff(wantTurn4, completer.calls[4]); diff != "" {
		t.Errorf("post-compaction request mismatch (-want +got):\n%s", diff)
	}

	if exp.calls != 1 {
		t.Fatalf("expected one export, got %d", exp.calls)
	}
	wantHistory := []provider.Message{
		greeting, provider.User("q1"), provider.Assistant("a1"),
		provider.User("q2"), provider.Assistant("a2"),
		provider.User("q3"), provider.Assistant("a3"),
		system, provider.Assistant("sum"), provider.User("q4"), provider.Assistant("a4"),
	}
	if diff := cmp.Diff(wantHistory, exp.turns); diff != "" {
		t.Errorf("exported history mismatch (-want +got):\n%s", diff)
	}
	if exp.name != "q1" {
		t.Errorf("transcript should be named after the first input, got %q", exp.name)
	}

	replies := ui.Texts(tui.EventReply)
	if diff := cmp.Diff([]string{"Hello!", "a1", "a2", "a3", "a4"}, replies); diff != "" {
		t.Errorf("shown replies mismatch (-want +got):\n%s", diff)
	}
	if !containsText(ui.Texts(tui.EventSystem), "Accumulated Token Usage: 150") {
		t.Errorf("usage not reported: %q", ui.Texts(tui.EventSystem))
	}
	if res.Cost <= 0 {
		t.Error("expected a positive cost for a priced model")
	}
}

func TestRunTerminationInSameTurn(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{
		{text: "a1", tokens: 50},
		{text: "a2", tokens: 80}, // window 130 > 100, cumulative 130
		{text: "sum", tokens: 10},
	}}
	ui := tui.NewBufferIO("q1", "q2", "never read")
	exp := &recordingExporter{}
	ctl := New(completer, ui, nil, exp, nil, options(100, 120))

	res := ctl.Run(context.Background())

	if res.Reason != ReasonThresholdExceeded {
		t.Fatalf("expected threshold termination, got %v", res.Reason)
	}
	if res.Cumulative != 140 {
		t.Errorf("cumulative = %d, want 140", res.Cumulative)
	}
	if len(completer.calls) != 3 {
		t.Errorf("expected 3 backend calls, got %d", len(completer.calls))
	}
	if exp.calls != 1 {
		t.Errorf("expected one export, got %d", exp.calls)
	}
	if len(ui.Texts(tui.EventWarn)) != 1 {
		t.Errorf("expected a termination warning, got %q", ui.Texts(tui.EventWarn))
	}
	for _, r := range ui.Texts(tui.EventReply) {
		if r == "a2" {
			t.Error("the reply of the terminating turn is exported, not shown")
		}
	}
	last := exp.turns[len(exp.turns)-1]
	if last != provider.Assistant("sum") {
		t.Errorf("history should end with the live summary turn, got %+v", last)
	}
}

func TestRunQuitAtFirstInput(t *testing.T) {
	exp := &recordingExporter{}
	ctl := New(&scriptedCompleter{}, tui.NewBufferIO("q"), nil, exp, nil, options(100, 1000))

	res := ctl.Run(context.Background())

	if res.Reason != ReasonUserQuit {
		t.Fatalf("expected user quit, got %v", res.Reason)
	}
	if exp.calls != 1 || exp.name != "q" {
		t.Fatalf("expected one export named q, got %d %q", exp.calls, exp.name)
	}
	if diff := cmp.Diff([]provider.Message{system, greeting}, exp.turns); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestRunEndOfInputQuits(t *testing.T) {
	exp := &recordingExporter{}
	completer := &scriptedCompleter{steps: []step{{text: "a1", tokens: 5}}}
	res := New(completer, tui.NewBufferIO("hi"), nil, exp, nil, options(100, 1000)).Run(context.Background())
	if res.Reason != ReasonUserQuit || exp.calls != 1 {
		t.Fatalf("EOF should end the session as a quit, got %+v (exports %d)", res, exp.calls)
	}
}

func TestRunBackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"request", &provider.RequestError{Provider: "scripted", StatusCode: 500, Message: "boom"}, "Request error: "},
		{"parsing", &provider.ResponseParsingError{Provider: "scripted", Field: "usage"}, "Parsing error: "},
		{"other", errors.New("socket gremlins"), "Unexpected error: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &scriptedCompleter{steps: []step{{err: tt.err}}}
			ui := tui.NewBufferIO("q1")
			exp := &recordingExporter{}

			res := New(completer, ui, nil, exp, nil, options(100, 1000)).Run(context.Background())

			if res.Reason != ReasonError || !errors.Is(res.Err, tt.err) {
				t.Fatalf("unexpected result %+v", res)
			}
			if exp.calls != 1 {
				t.Errorf("expected one export, got %d", exp.calls)
			}
			if diff := cmp.Diff([]provider.Message{system, greeting, provider.User("q1")}, exp.turns); diff != "" {
				t.Errorf("no partial reply may be exported (-want +got):\n%s", diff)
			}
			errs := ui.Texts(tui.EventError)
			if len(errs) != 1 || !strings.HasPrefix(errs[0], tt.message) {
				t.Errorf("errors shown = %q, want prefix %q", errs, tt.message)
			}
		})
	}
}

func TestRunCompactionFailure(t *testing.T) {
	failure := &provider.RequestError{Provider: "scripted", StatusCode: 429, Message: "slow down"}
	completer := &scriptedCompleter{steps: []step{
		{text: "a1", tokens: 150},
		{err: failure},
	}}
	exp := &recordingExporter{}
	ctl := New(completer, tui.NewBufferIO("q1", "q2"), nil, exp, nil, options(100, 1000))

	res := ctl.Run(context.Background())

	if res.Reason != ReasonError || !errors.Is(res.Err, failure) {
		t.Fatalf("unexpected result %+v", res)
	}
	if ctl.Session().Compactions != 0 {
		t.Error("a failed compaction must not count")
	}
	want := []provider.Message{system, greeting, provider.User("q1"), provider.Assistant("a1")}
	if diff := cmp.Diff(want, exp.turns); diff != "" {
		t.Errorf("context should be exported untouched (-want +got):\n%s", diff)
	}
	if res.Cumulative != 150 {
		t.Errorf("cumulative = %d, want 150", res.Cumulative)
	}
}

func TestRunInterruptedWhileReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completer := &scriptedCompleter{steps: []step{{text: "a1", tokens: 10}}}
	ui := tui.NewBufferIO("q1", "q2")
	ui.OnRead = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	exp := &recordingExporter{}

	res := New(completer, ui, nil, exp, nil, options(100, 1000)).Run(ctx)

	if res.Reason != ReasonInterrupted || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if exp.calls != 1 {
		t.Fatalf("expected one export, got %d", exp.calls)
	}
	want := []provider.Message{system, greeting, provider.User("q1"), provider.Assistant("a1")}
	if diff := cmp.Diff(want, exp.turns); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if w := ui.Texts(tui.EventWarn); len(w) != 1 || w[0] != "Interrupted." {
		t.Errorf("warnings = %q", w)
	}
}

func TestRunInterruptedDuringCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completer := &scriptedCompleter{steps: []step{
		{text: "a1", tokens: 10},
		{text: "never", tokens: 10, before: cancel},
	}}
	exp := &recordingExporter{}

	res := New(completer, tui.NewBufferIO("q1", "q2"), nil, exp, nil, options(100, 1000)).Run(ctx)

	if res.Reason != ReasonInterrupted {
		t.Fatalf("expected interrupted, got %v", res.Reason)
	}
	for _, m := range exp.turns {
		if m.Content == "never" {
			t.Error("an in-flight reply must not be appended")
		}
	}
	if last := exp.turns[len(exp.turns)-1]; last != provider.User("q2") {
		t.Errorf("history should end with the pending user turn, got %+v", last)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{{panic: true}}}
	ui := tui.NewBufferIO("q1")
	exp := &recordingExporter{}

	res := New(completer, ui, nil, exp, nil, options(100, 1000)).Run(context.Background())

	if res.Reason != ReasonError || res.Err == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if exp.calls != 1 {
		t.Errorf("expected one export, got %d", exp.calls)
	}
	if errs := ui.Texts(tui.EventError); len(errs) != 1 || !strings.HasPrefix(errs[0], "Unexpected error: ") {
		t.Errorf("errors shown = %q", errs)
	}
}

func TestRunExportFailureIsReported(t *testing.T) {
	exp := &recordingExporter{err: errors.New("disk full")}
	ui := tui.NewBufferIO("q")

	res := New(&scriptedCompleter{}, ui, nil, exp, nil, options(100, 1000)).Run(context.Background())

	if res.Reason != ReasonUserQuit {
		t.Fatalf("export failure does not change the reason, got %v", res.Reason)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "disk full") {
		t.Fatalf("expected the export error in the result, got %v", res.Err)
	}
	if res.Transcript != "" {
		t.Errorf("no transcript path on failure, got %q", res.Transcript)
	}
	if !containsText(ui.Texts(tui.EventError), "disk full") {
		t.Errorf("export failure should be shown, got %q", ui.Texts(tui.EventError))
	}
}

func TestRunFileRetryAppendsOnlyIngestedContent(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{{text: "read it", tokens: 10}}}
	ui := tui.NewBufferIO("--file bad.xyz", "--file missing.txt", "--file good.txt", "q")
	exp := &recordingExporter{}
	files := fakeFiles{"good.txt": "FileName:good.txtcontent"}

	res := New(completer, ui, files, exp, nil, options(100, 1000)).Run(context.Background())

	if res.Reason != ReasonUserQuit {
		t.Fatalf("unexpected result %+v", res)
	}
	want := []provider.Message{system, greeting, provider.User("FileName:good.txtcontent")}
	if diff := cmp.Diff(want, completer.calls[0]); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	if n := len(ui.Texts(tui.EventError)); n != 2 {
		t.Errorf("expected 2 ingest errors shown, got %d", n)
	}
}

func TestRunWithoutFiles(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{{text: "ok", tokens: 1}}}
	ui := tui.NewBufferIO("--file notes.md", "plain", "q")

	res := New(completer, ui, nil, &recordingExporter{}, nil, options(100, 1000)).Run(context.Background())

	if res.Reason != ReasonUserQuit {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := completer.calls[0][2]; got != provider.User("plain") {
		t.Errorf("expected the literal retry line, got %+v", got)
	}
}

func TestReasonString(t *testing.T) {
	for r, want := range map[Reason]string{
		ReasonUserQuit:          "user_quit",
		ReasonThresholdExceeded: "threshold_exceeded",
		ReasonError:             "error",
		ReasonInterrupted:       "interrupted",
		Reason(0):               "unknown",
	} {
		if r.String() != want {
			t.Errorf("%d.String() = %q, want %q", r, r.String(), want)
		}
	}
}

func containsText(texts []string, sub string) bool {
	for _, t := range texts {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

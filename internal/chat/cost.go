package chat

import (
	"fmt"
	"strings"
)

// Pricing is the dollar price per million tokens of one model.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// CallKind tells a conversation turn from a summarization call.
type CallKind string

const (
	CallTurn       CallKind = "turn"
	CallCompaction CallKind = "compaction"
)

// Call is the cost record of one completion request.
type Call struct {
	Kind         CallKind
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// CostTracker accumulates token usage and estimated dollar cost across the
// calls of one session.
type CostTracker struct {
	pricing map[string]Pricing
	calls   []Call
	total   float64
}

// NewCostTracker prices calls with the given catalog. Models missing from it
// are recorded at zero cost.
func NewCostTracker(pricing map[string]Pricing) *CostTracker {
	p := make(map[string]Pricing, len(pricing))
	for k, v := range pricing {
		p[k] = v
	}
	return &CostTracker{pricing: p}
}

// Record adds one call and returns its cost.
func (ct *CostTracker) Record(kind CallKind, model string, inputTokens, outputTokens int) float64 {
	cost := ct.price(model, inputTokens, outputTokens)
	ct.total += cost
	ct.calls = append(ct.calls, Call{
		Kind:         kind,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
	})
	return cost
}

// Total returns the session cost in dollars.
func (ct *CostTracker) Total() float64 { return ct.total }

// Calls returns the recorded calls, oldest first.
func (ct *CostTracker) Calls() []Call {
	return append([]Call(nil), ct.calls...)
}

// FormatCost renders the total like "$0.12", with four decimals below a cent.
func (ct *CostTracker) FormatCost() string {
	if ct.total < 0.01 {
		return fmt.Sprintf("$%.4f", ct.total)
	}
	return fmt.Sprintf("$%.2f", ct.total)
}

// Summary is a one-line account of the session's spend.
func (ct *CostTracker) Summary() string {
	if len(ct.calls) == 0 {
		return "No usage recorded."
	}
	in, out, compactions := 0, 0, 0
	for _, c := range ct.calls {
		in += c.InputTokens
		out += c.OutputTokens
		if c.Kind == CallCompaction {
			compactions++
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Estimated cost: %s (%d calls", ct.FormatCost(), len(ct.calls))
	if compactions > 0 {
		fmt.Fprintf(&sb, ", %d compactions", compactions)
	}
	fmt.Fprintf(&sb, "; %d input + %d output tokens)", in, out)
	return sb.String()
}

func (ct *CostTracker) price(model string, inputTokens, outputTokens int) float64 {
	p, ok := ct.pricing[model]
	if !ok {
		// Versioned names such as "gpt-4o-2024-08-06" fall back to the
		// longest catalog entry they start with.
		best := ""
		for name, pricing := range ct.pricing {
			if strings.HasPrefix(model, name) && len(name) > len(best) {
				best, p, ok = name, pricing, true
			}
		}
	}
	if !ok {
		return 0
	}
	return float64(inputTokens)*p.InputPerMillion/1_000_000 +
		float64(outputTokens)*p.OutputPerMillion/1_000_000
}

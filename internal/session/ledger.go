package session

// Thresholds bound token spend for one session. Termination is expected to be
// at least Throttle but this is not enforced: with Termination < Throttle the
// session simply ends before the first compaction.
type Thresholds struct {
	Throttle    int // window usage above this triggers compaction
	Termination int // cumulative usage above this ends the session
}

// Ledger tracks token usage for the current compaction window and for the
// whole session.
type Ledger struct {
	thresholds Thresholds
	window     int // since the last compaction
	cumulative int // never reset
}

// NewLedger returns an empty ledger checked against th.
func NewLedger(th Thresholds) *Ledger {
	return &Ledger{thresholds: th}
}

// RecordUsage adds tokens to both counters.
func (l *Ledger) RecordUsage(tokens int) {
	l.window += tokens
	l.cumulative += tokens
}

// ExceedsThrottle reports whether the window is strictly above the throttle.
func (l *Ledger) ExceedsThrottle() bool {
	return l.window > l.thresholds.Throttle
}

// ExceedsTermination reports whether cumulative usage is strictly above the
// termination threshold.
func (l *Ledger) ExceedsTermination() bool {
	return l.cumulative > l.thresholds.Termination
}

// ResetWindow zeroes the window counter after a successful compaction.
func (l *Ledger) ResetWindow() {
	l.window = 0
}

func (l *Ledger) Window() int            { return l.window }
func (l *Ledger) Cumulative() int        { return l.cumulative }
func (l *Ledger) Thresholds() Thresholds { return l.thresholds }

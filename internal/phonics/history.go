package phonics

// DefaultWindow is the number of attempts a [History] remembers.
const DefaultWindow = 5

// History is a sliding window of attempt outcomes, oldest first. It is not
// safe for concurrent use; the owning session serializes access.
type History struct {
	window   int
	outcomes []bool
}

// NewHistory returns an empty history holding at most window outcomes.
// A non-positive window falls back to [DefaultWindow].
func NewHistory(window int) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	return &History{window: window, outcomes: make([]bool, 0, window)}
}

// Record appends an outcome, evicting the oldest one when the window is full.
func (h *History) Record(correct bool) {
	if len(h.outcomes) == h.window {
		copy(h.outcomes, h.outcomes[1:])
		h.outcomes = h.outcomes[:h.window-1]
	}
	h.outcomes = append(h.outcomes, correct)
}

// Outcomes returns a copy of the remembered outcomes, oldest first.
func (h *History) Outcomes() []bool {
	out := make([]bool, len(h.outcomes))
	copy(out, h.outcomes)
	return out
}

// Len returns the number of remembered outcomes.
func (h *History) Len() int { return len(h.outcomes) }

// Window returns the configured capacity.
func (h *History) Window() int { return h.window }

// SuccessRate is [SuccessRate] over the remembered outcomes.
func (h *History) SuccessRate() float64 { return SuccessRate(h.outcomes) }

package generation

import "strings"

// Accumulator collects the text fragments of one attempt. It never
// deduplicates or drops input.
type Accumulator struct {
	sb     strings.Builder
	onGrow func(buffer string)
}

// NewAccumulator returns an empty accumulator. onGrow, if non-nil, receives
// the whole buffer after every append.
func NewAccumulator(onGrow func(buffer string)) *Accumulator {
	return &Accumulator{onGrow: onGrow}
}

// Append adds fragment and returns the whole buffer.
func (a *Accumulator) Append(fragment string) string {
	a.sb.WriteString(fragment)
	buf := a.sb.String()
	if a.onGrow != nil {
		a.onGrow(buf)
	}
	return buf
}

// Reset empties the buffer for the next attempt.
func (a *Accumulator) Reset() {
	a.sb.Reset()
}

func (a *Accumulator) String() string {
	return a.sb.String()
}

func (a *Accumulator) Len() int {
	return a.sb.Len()
}

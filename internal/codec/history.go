// Package codec encodes command arguments into packed binary frames and
// decodes telemetry frames into raw, symbolic, and engineering-unit values
// against a resolved dictionary.
package codec

// DefaultHistoryDepth is the per-name sample retention bound for a
// session when none is given.
const DefaultHistoryDepth = 60

// History is a bounded, ordered record of a single name's most recent
// decoded values; the oldest sample is discarded first.
type History struct {
	depth  int
	values []float64
}

// Append records a sample, evicting the oldest once the bound is reached.
func (h *History) Append(v float64) {
	if len(h.values) == h.depth {
		copy(h.values, h.values[1:])
		h.values[len(h.values)-1] = v
		return
	}
	h.values = append(h.values, v)
}

// At returns the sample at a negative offset: -1 is the most recent.
func (h *History) At(offset int) (float64, bool) {
	if offset >= 0 {
		return 0, false
	}
	i := len(h.values) + offset
	if i < 0 {
		return 0, false
	}
	return h.values[i], true
}

// Len returns the number of retained samples.
func (h *History) Len() int { return len(h.values) }

// Session owns the history buffers for one telemetry stream. A session
// must not be shared across concurrently decoding streams; the dictionary
// it decodes against may be.
type Session struct {
	depth   int
	buffers map[string]*History
}

// NewSession creates a session with the default retention depth.
func NewSession() *Session {
	return NewSessionDepth(DefaultHistoryDepth)
}

// NewSessionDepth creates a session retaining up to depth samples per name.
func NewSessionDepth(depth int) *Session {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &Session{depth: depth, buffers: make(map[string]*History)}
}

// History returns the buffer for a name, creating it empty if needed.
func (s *Session) History(name string) *History {
	h, ok := s.buffers[name]
	if !ok {
		h = &History{depth: s.depth}
		s.buffers[name] = h
	}
	return h
}

// sample looks up a history value without creating a buffer.
func (s *Session) sample(name string, offset int) (float64, bool) {
	h, ok := s.buffers[name]
	if !ok {
		return 0, false
	}
	return h.At(offset)
}

package protocol

// Decoding limits guard against malicious size prefixes and recursion.
const (
	// DefaultMaxAllocation bounds the byte length of a single decoded string (4MB).
	DefaultMaxAllocation = 4 * 1024 * 1024

	// MaxCollectionCount bounds the element count of a single sequence.
	MaxCollectionCount = 100_000

	// MaxEntityDepth bounds how deeply nested entities may be encoded or decoded.
	MaxEntityDepth = 64
)

// Limits configures the decoder bounds of a Codec.
// Use DefaultLimits() for sensible defaults.
type Limits struct {
	MaxAllocation      int
	MaxCollectionCount int
	MaxDepth           int
}

// DefaultLimits returns the default decoding limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAllocation:      DefaultMaxAllocation,
		MaxCollectionCount: MaxCollectionCount,
		MaxDepth:           MaxEntityDepth,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxAllocation <= 0 {
		l.MaxAllocation = d.MaxAllocation
	}
	if l.MaxCollectionCount <= 0 {
		l.MaxCollectionCount = d.MaxCollectionCount
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	return l
}

// depthContext tracks the current nesting depth while encoding or decoding.
type depthContext struct {
	current int
	max     int
}

// enter increments the depth and returns an error if the limit would be exceeded.
// The depth is only incremented on success.
func (dc *depthContext) enter() error {
	if dc.current >= dc.max {
		return ErrMaxDepthExceeded
	}
	dc.current++
	return nil
}

func (dc *depthContext) leave() {
	dc.current--
}

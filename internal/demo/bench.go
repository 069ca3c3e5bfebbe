package demo

import (
	"errors"
	"time"

	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

// Throughput is the result of Measure.
type Throughput struct {
	Iterations int
	FrameSize  int
	Pack       time.Duration // average per operation
	Unpack     time.Duration // average per operation
}

// Measure packs and then unpacks v n times with codec and reports the
// average time per operation.
func Measure(codec *protocol.Codec, v any, n int) (Throughput, error) {
	if n <= 0 {
		return Throughput{}, errors.New("demo: iterations must be positive")
	}

	frame, err := codec.Pack(v)
	if err != nil {
		return Throughput{}, err
	}

	start := time.Now()
	for range n {
		if _, err := codec.Pack(v); err != nil {
			return Throughput{}, err
		}
	}
	pack := time.Since(start)

	start = time.Now()
	for range n {
		if _, err := codec.Unpack(frame); err != nil {
			return Throughput{}, err
		}
	}
	unpack := time.Since(start)

	return Throughput{
		Iterations: n,
		FrameSize:  len(frame),
		Pack:       pack / time.Duration(n),
		Unpack:     unpack / time.Duration(n),
	}, nil
}

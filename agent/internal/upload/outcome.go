package upload

import "time"

// Kind tags the result of one delivery attempt.
type Kind int

// The zero Kind means no request was made.
const (
	Delivered Kind = iota + 1
	Failed
	Superseded
)

func (k Kind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Superseded:
		return "superseded"
	}
	return "none"
}

// Outcome is the result of Attempt.Send.
type Outcome struct {
	Kind Kind

	// Count is the number of samples accepted. Non-zero only for Delivered.
	Count int

	// Err is set for Failed (*TransportError or *RejectedError) and
	// Superseded (ErrSuperseded).
	Err error

	// Duration is the wall time spent on the request.
	Duration time.Duration
}

func delivered(n int, d time.Duration) Outcome {
	return Outcome{Kind: Delivered, Count: n, Duration: d}
}

func failed(err error, d time.Duration) Outcome {
	return Outcome{Kind: Failed, Err: err, Duration: d}
}

func superseded(d time.Duration) Outcome {
	return Outcome{Kind: Superseded, Err: ErrSuperseded, Duration: d}
}

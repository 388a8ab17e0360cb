package retry

// DefaultMaxReceiveCount matches the dead-letter threshold of every queue.
const DefaultMaxReceiveCount = 3

// Policy decides whether a failed delivery is reported now or left to the
// queue for redelivery. Redelivery timing belongs to the queue's visibility
// timeout, so the policy computes no backoff.
type Policy struct {
	MaxReceiveCount int
}

func NewPolicy(maxReceiveCount int) Policy {
	if maxReceiveCount <= 0 {
		maxReceiveCount = DefaultMaxReceiveCount
	}
	return Policy{MaxReceiveCount: maxReceiveCount}
}

// Attempt binds a queue-supplied receive count to the policy.
func (p Policy) Attempt(receiveCount int) Attempt {
	return Attempt{ReceiveCount: receiveCount, MaxReceiveCount: p.MaxReceiveCount}
}

// Attempt is one delivery of a job envelope.
type Attempt struct {
	ReceiveCount    int
	MaxReceiveCount int
}

// IsLast reports whether this delivery is the final one before the message
// is dead-lettered. A counter that overshoots the maximum (a crash between
// delivery and dead-lettering) is also treated as last.
func (a Attempt) IsLast() bool {
	return a.ReceiveCount >= a.MaxReceiveCount
}

package event

import "time"

// Header keys carried on re-published messages. The retry mechanism is
// implemented by the bus consumer, not the broker.
const (
	HeaderRetryCount = "x-retry-count"
)

// RetryEnvelope tags an envelope whose delivery failed, together with the
// number of delivery attempts already made. The counter travels on the wire
// as the x-retry-count header; the original envelope body is never modified.
type RetryEnvelope struct {
	Envelope Envelope
	Attempts int
}

// Next returns the retry state after one more failed attempt.
func (r RetryEnvelope) Next() RetryEnvelope {
	return RetryEnvelope{Envelope: r.Envelope, Attempts: r.Attempts + 1}
}

// Exhausted reports whether the message has used up its delivery budget.
func (r RetryEnvelope) Exhausted(maxAttempts int) bool {
	return r.Attempts >= maxAttempts
}

// Backoff returns the delay before the message is re-published: 2^attempts
// seconds.
func (r RetryEnvelope) Backoff() time.Duration {
	return time.Duration(1<<uint(r.Attempts)) * time.Second
}

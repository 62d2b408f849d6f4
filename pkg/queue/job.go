package queue

import "context"

// Job is a consumer-side handler bound to one message type. The consumer
// routes each dequeued message to the job whose Type matches.
type Job interface {
	// Name identifies the job in logs and retry bookkeeping.
	Name() string

	// Type is the message type this job consumes.
	Type() string

	// Handle processes one message payload. A returned error triggers the
	// queue's retry policy.
	Handle(ctx context.Context, payload interface{}) error
}

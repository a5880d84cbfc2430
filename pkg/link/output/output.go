package output

import (
	"context"
	"time"
)

// Received is one delivery as seen by outputs and Link.Received consumers. Payload is
// a private copy; Err is set instead for packets that failed to decode.
type Received struct {
	SessionID string
	Sequence  uint64
	Payload   []byte
	Err       error
	Timestamp time.Time
}

func (r *Received) OK() bool {
	return r.Err == nil
}

// Output handles received packets.
type Output interface {
	// Start receives a context and should run in a loop, terminating upon ctx closing or on any errors.
	Start(ctx context.Context) error
	// Receive returns a channel that receives packets.
	Receive() chan<- *Received
}

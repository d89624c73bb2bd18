package event

// NormalizedBatch is a RawBatch after normalization. Events keep the input
// order; events that were filtered out or failed are absent from Events.
type NormalizedBatch struct {
	ID           string
	StartVersion int64
	EndVersion   int64
	Events       []*CanonicalEvent
	Errors       []EventError
	Skipped      int
	Rollback     bool
	AckToken     string
}

// EventError records a per-event failure that did not abort the batch.
type EventError struct {
	TransactionVersion int64
	EventIndex         int64
	Type               string
	Err                error
}

func (e EventError) Error() string {
	return e.Err.Error()
}

func (e EventError) Unwrap() error {
	return e.Err
}

package model

import "errors"

// Sentinel errors covering the taxonomy of spec §7. Actors classify errors
// against these with errors.Is/errors.As before deciding whether to retry,
// surface a conflict, or stop the replicator.
var (
	// ErrNotFound is returned when a document or checkpoint does not exist.
	ErrNotFound = errors.New("litesync: not found")
	// ErrConflict is returned when a revision insert collides with the
	// current tip and cannot be applied without becoming a new leaf.
	ErrConflict = errors.New("litesync: document conflict")
	// ErrCheckpointMismatch classifies a disagreement between the local and
	// remote checkpoints. CheckpointStore.Resolve does not return it; it
	// resets the checkpoint to zero instead.
	ErrCheckpointMismatch = errors.New("litesync: checkpoint mismatch")
	// ErrMalformedMessage is returned when a wire message is missing a
	// required property or has an unparsable body. Fatal to the connection.
	ErrMalformedMessage = errors.New("litesync: malformed message")
	// ErrUnauthorized classifies a peer's rejection of our credentials. No
	// code in this module returns it.
	ErrUnauthorized = errors.New("litesync: unauthorized")
	// ErrCancelled is returned when an operation was aborted by a stopping
	// replicator. Not treated as a failure.
	ErrCancelled = errors.New("litesync: cancelled")
	// ErrClosed classifies use of an actor or store after Close/Stop. No
	// code in this module returns it.
	ErrClosed = errors.New("litesync: closed")
)

// TransientError wraps an underlying transport error that is expected to
// clear up on retry (spec §7 "transient transport (retry with backoff)").
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "litesync: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should trigger the reconnect backoff loop
// rather than a terminal stop.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

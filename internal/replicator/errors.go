package replicator

import (
	"errors"
	"math/rand"
	"time"

	"github.com/codetrek/litesync/pkg/model"
)

// Class buckets an error into the taxonomy spec §7 lays out, so the
// coordinator can decide whether to retry, surface, or reset.
type Class int

const (
	ClassTransientTransport Class = iota
	ClassAuthentication
	ClassCheckpointConflict
	ClassDocumentConflict
	ClassMalformedMessage
	ClassLocalIO
	ClassCancelled
)

// Classify maps an error to its handling class. Unrecognized errors are
// treated as local I/O failures (surface and stop), the conservative
// default.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassCancelled
	case errors.Is(err, model.ErrCancelled):
		return ClassCancelled
	case errors.Is(err, model.ErrUnauthorized):
		return ClassAuthentication
	case errors.Is(err, model.ErrCheckpointMismatch):
		return ClassCheckpointConflict
	case errors.Is(err, model.ErrConflict):
		return ClassDocumentConflict
	case errors.Is(err, model.ErrMalformedMessage):
		return ClassMalformedMessage
	case model.IsTransient(err):
		return ClassTransientTransport
	default:
		return ClassLocalIO
	}
}

// Fatal reports whether a class of error should stop the replicator
// outright, as opposed to being absorbed (document conflicts) or retried
// (transient transport, checkpoint conflict).
func (c Class) Fatal() bool {
	switch c {
	case ClassAuthentication, ClassMalformedMessage, ClassLocalIO:
		return true
	default:
		return false
	}
}

// Backoff computes the exponential, jittered reconnect delay for the
// n'th consecutive transient failure (n starting at 0), capped at 64s per
// spec §7.
func Backoff(n int) time.Duration {
	const cap = 64 * time.Second
	base := time.Second
	for i := 0; i < n && base < cap; i++ {
		base *= 2
	}
	if base > cap {
		base = cap
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base/2 + jitter
}

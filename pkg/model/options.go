package model

import "context"

// ReplicatorMode is one arm of the {push, pull} direction pair (spec §6).
type ReplicatorMode int

const (
	ModeNone ReplicatorMode = iota
	ModeOneShot
	ModeContinuous
)

func (m ReplicatorMode) Active() bool { return m != ModeNone }

// Authenticator produces a credential for the initial handshake. Nothing
// in this module calls it: transport.Dial sends whatever header its caller
// passes. Spec §1 excludes real transport authentication (TLS)
// from scope; this narrow interface is the "opaque authenticator" hook
// spec §6's Options table names.
type Authenticator interface {
	Authenticate(ctx context.Context) (headerValue string, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) (string, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context) (string, error) { return f(ctx) }

// Options configures a replication session (spec §6).
type Options struct {
	Push ReplicatorMode
	Pull ReplicatorMode

	// DocIDs restricts the pusher's change feed to this explicit allow-set,
	// if non-nil. Pulled changes are not filtered by it.
	DocIDs map[string]struct{}

	// Filter names a server-side filter function; FilterParameters carries
	// its arguments. Both are opaque to the replicator (spec §1 Non-goals).
	Filter           string
	FilterParameters map[string]interface{}

	// HeartbeatSeconds is the configured heartbeat interval (spec §8
	// scenario 4). No component reads it: idle connections are neither
	// probed nor timed out.
	HeartbeatSeconds int

	Authenticator Authenticator

	// ProtocolVersion feeds the checkpoint digest (spec §4.4).
	ProtocolVersion string

	// PushBatchSize bounds how many change entries the pusher requests per
	// DBActor.GetChanges call (spec §4.2, "typical: 200").
	PushBatchSize int

	// PushWindow bounds outstanding unacknowledged per-rev sends (spec
	// §4.2 "Backpressure").
	PushWindow int

	// InsertBatchHighWater and InsertBatchInterval configure the
	// InsertBatcher (spec §4.1).
	InsertBatchHighWater int
	InsertBatchInterval  int64 // milliseconds
}

// FilterOptionsKey returns a canonical, order-independent encoding of the
// filter configuration for use in the checkpoint digest (spec §4.4).
func (o Options) FilterOptionsKey() []byte {
	if o.Filter == "" && len(o.FilterParameters) == 0 && len(o.DocIDs) == 0 {
		return nil
	}
	return canonicalJSON(map[string]interface{}{
		"filter": o.Filter,
		"params": o.FilterParameters,
		"docIDs": sortedKeys(o.DocIDs),
	})
}

// WithDefaults fills unset numeric knobs with the values spec §4.1/§4.2
// call out as typical, without mutating the caller's Options in place.
func (o Options) WithDefaults() Options {
	if o.PushBatchSize <= 0 {
		o.PushBatchSize = 200
	}
	if o.PushWindow <= 0 {
		o.PushWindow = 20
	}
	if o.InsertBatchHighWater <= 0 {
		o.InsertBatchHighWater = 100
	}
	if o.InsertBatchInterval <= 0 {
		o.InsertBatchInterval = 500
	}
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = "litesync/1"
	}
	return o
}

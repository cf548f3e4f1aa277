// Package replicator implements Core A: a peer-to-peer synchronization
// engine moving document revisions between a local revstore.Store and a
// remote peer over a transport.Connection. It is built as cooperating
// actors — Replicator, DBActor, Pusher, Puller — without the source's
// virtual-dispatch inheritance hierarchy (spec's design notes call this
// out explicitly). DBActor drains a mailbox channel; the Pusher runs its
// own loop goroutine; the Puller's handlers run on the connection's read
// goroutine.
package replicator

import "fmt"

// ActivityLevel mirrors the coordinator's externally visible lifecycle.
type ActivityLevel int

const (
	Stopped ActivityLevel = iota
	Idle
	Busy
	CaughtUp
)

func (a ActivityLevel) String() string {
	switch a {
	case Stopped:
		return "stopped"
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case CaughtUp:
		return "caught-up"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// Progress reports document counts, conflicts and the last per-revision
// error of a replication session.
type Progress struct {
	DocsPushed   int
	DocsPulled   int
	Conflicts    int
	LastError    error
}

// Status is the externally observable state of a replication session.
type Status struct {
	Push     ActivityLevel
	Pull     ActivityLevel
	Progress Progress
	Err      error
}

// Combined reports the coarsest of Push/Pull, since external observers
// generally want "is this replicator doing anything" rather than
// per-direction detail.
func (s Status) Combined() ActivityLevel {
	if s.Push == Stopped && s.Pull == Stopped {
		return Stopped
	}
	if s.Push == Busy || s.Pull == Busy {
		return Busy
	}
	if s.Push == Idle || s.Pull == Idle {
		return Idle
	}
	return CaughtUp
}

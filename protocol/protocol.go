/*
Package protocol defines the server-to-server dialect contract that every
uplink implementation (see protocol/unreal) must satisfy: how to build the
introduction burst, how to introduce a synthetic client, and how to react to
a single inbound message.
*/
package protocol

import (
	"fmt"

	"github.com/mindforge-irc/linksvc/irc"
)

// ErrorKind classifies an Error's severity. Kinds other than Fatal and
// ProtocolVersionMismatch are recoverable: the link stays open.
type ErrorKind int

const (
	// MissingParameter: a command arrived with fewer parameters than it
	// requires.
	MissingParameter ErrorKind = iota
	// InvalidParameter: a parameter was present but held an unacceptable
	// value.
	InvalidParameter
	// InvalidContext: the command is not valid in the engine's current
	// state (most commonly a handshake-only command seen after sync).
	InvalidContext
	// ProtocolVersionMismatch: the uplink advertised an incompatible
	// protocol version. Fatal.
	ProtocolVersionMismatch
	// Fatal: any other unrecoverable failure. Closes the link.
	Fatal
)

// String renders the kind the way it appears in log lines.
func (k ErrorKind) String() string {
	switch k {
	case MissingParameter:
		return "MissingParameter"
	case InvalidParameter:
		return "InvalidParameter"
	case InvalidContext:
		return "InvalidContext"
	case ProtocolVersionMismatch:
		return "ProtocolVMismatch"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Closes reports whether an error of this kind terminates the link.
func (k ErrorKind) Closes() bool {
	return k == Fatal || k == ProtocolVersionMismatch
}

// Error is a typed failure surfaced by an Engine while handling a message.
type Error struct {
	Kind   ErrorKind
	Desc   string
	Detail string
}

// Error satisfies the error interface, rendering the
// "[PROTOCOL ERROR] (<kind>): <desc> (<detail>)" format the driver logs.
func (e *Error) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = "no details"
	}
	return fmt.Sprintf("[PROTOCOL ERROR] (%s): %s (%s)", e.Kind, e.Desc, detail)
}

// ClientKind distinguishes the umodes applied when introducing a synthetic
// client.
type ClientKind int

const (
	// Regular clients get the default user mode.
	Regular ClientKind = iota
	// Service clients get the service-operator mode set.
	Service
)

// ClientIdentity names a synthetic client to introduce onto the network.
type ClientIdentity struct {
	Nick  string
	Ident string
	Host  string
	Gecos string
}

// Engine drives one uplink's server-to-server dialect: it builds the
// introduction burst, builds client-introduction lines, and reacts to each
// inbound message with zero or one reply (or a typed Error).
//
// A single link speaks one dialect at a time, so Engine is implemented by
// exactly one concrete type per dialect (see protocol/unreal.Unreal);
// dialects share behavior through composition (see pingReply) rather than
// an inheritance hierarchy.
type Engine interface {
	// IntroduceMsg returns the multi-line burst sent immediately after
	// connecting, before any message has been read from the uplink.
	IntroduceMsg() string
	// IntroduceClientMsg builds a single NICK line introducing a synthetic
	// client of the given kind and identity.
	IntroduceClientMsg(kind ClientKind, identity ClientIdentity) string
	// Handle reacts to one inbound message. A non-empty reply must be
	// written to the uplink before the next message is read.
	Handle(msg irc.Message) (reply string, err *Error)
	// Synced reports whether end-of-burst has been received from the
	// uplink; handshake-only commands become InvalidContext once true.
	Synced() bool
}

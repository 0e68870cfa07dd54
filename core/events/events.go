// Package events defines the small vocabulary of occurrences the engine
// reports to its supervising controller, per §4.10.
package events

import "github.com/dronemesh/relaynode/core/proto"

// Kind distinguishes the two event shapes the engine ever emits.
type Kind uint8

const (
	// PacketSent reports a packet successfully handed to a neighbor
	// channel.
	PacketSent Kind = iota
	// Shortcut reports a packet the engine could not route itself,
	// typically a misrouted flood response or an ack with no viable
	// path. The controller may redeliver it out of band.
	Shortcut
)

func (k Kind) String() string {
	switch k {
	case PacketSent:
		return "PacketSent"
	case Shortcut:
		return "Shortcut"
	default:
		return "Unknown"
	}
}

// Event is one occurrence reported to the controller.
type Event struct {
	Kind   Kind
	Packet *proto.Packet
}

// Sink receives events as they occur. Emit must be synchronous and
// non-blocking from the engine's perspective — callers are expected to
// buffer or forward asynchronously if needed.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink that drops every event, useful in tests that do not
// care about observability output.
var Discard Sink = SinkFunc(func(Event) {})

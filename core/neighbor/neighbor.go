// Package neighbor tracks the live outbound channels to this node's
// directly attached neighbors and provides the single-hop send/broadcast
// primitives the flood engine, send-side store, and ack/nack handler all
// need.
//
// The reference codebase's router.Router guards its transport list with a
// sync.RWMutex because packets can arrive on several transport goroutines
// concurrently. This engine instead runs one cooperative loop per §5 — no
// other goroutine ever touches a Table concurrently — so the mutex is
// dropped entirely rather than carried over unused.
package neighbor

import "github.com/dronemesh/relaynode/core/proto"

// Table is the set of neighbor channels currently installed, keyed by
// node id.
type Table struct {
	channels map[proto.NodeID]chan<- *proto.Packet
}

// New creates an empty neighbor Table.
func New() *Table {
	return &Table{channels: make(map[proto.NodeID]chan<- *proto.Packet)}
}

// Add installs or replaces the channel for id.
func (t *Table) Add(id proto.NodeID, ch chan<- *proto.Packet) {
	t.channels[id] = ch
}

// Remove drops the channel for id. Returns true if one was present.
func (t *Table) Remove(id proto.NodeID) bool {
	if _, ok := t.channels[id]; !ok {
		return false
	}
	delete(t.channels, id)
	return true
}

// Channel returns the channel installed for id, if any.
func (t *Table) Channel(id proto.NodeID) (chan<- *proto.Packet, bool) {
	ch, ok := t.channels[id]
	return ch, ok
}

// Send delivers pkt to id's channel. Returns false if no channel is
// installed for id, or if its channel is full — a bounded neighbor
// channel under backpressure is a no-route condition exactly like a
// missing one, never something a handler blocks on (§5, §4.6).
func (t *Table) Send(id proto.NodeID, pkt *proto.Packet) bool {
	ch, ok := t.channels[id]
	if !ok {
		return false
	}
	select {
	case ch <- pkt:
		return true
	default:
		return false
	}
}

// Broadcast delivers a clone of pkt to every installed neighbor except
// the one identified by except, and returns how many neighbors actually
// received it. A neighbor whose channel is full is skipped rather than
// blocked on, the same as Send.
func (t *Table) Broadcast(except proto.NodeID, pkt *proto.Packet) int {
	sent := 0
	for id, ch := range t.channels {
		if id == except {
			continue
		}
		select {
		case ch <- pkt.Clone():
			sent++
		default:
		}
	}
	return sent
}

// Ids returns every neighbor id with an installed channel.
func (t *Table) Ids() []proto.NodeID {
	ids := make([]proto.NodeID, 0, len(t.channels))
	for id := range t.channels {
		ids = append(ids, id)
	}
	return ids
}

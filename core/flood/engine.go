// Package flood implements topology discovery: minting flood broadcasts,
// the cycle-suppressing forwarding rule for requests, and folding
// responses back into the routing table, per §4.4.
//
// Grounded on the forwarding-decision shape of
// kabili207-meshcore-go/device/router/router.go's HandlePacket (dedup
// check, then either bounce a reply or re-broadcast to every neighbor but
// the inbound one) and on original_source/src/servers/mod.rs's flood
// handling, re-targeted at this specification's trace/graph model instead
// of the firmware's path-array format.
package flood

import (
	"log/slog"

	"github.com/dronemesh/relaynode/core/events"
	"github.com/dronemesh/relaynode/core/floodmem"
	"github.com/dronemesh/relaynode/core/ids"
	"github.com/dronemesh/relaynode/core/proto"
	"github.com/dronemesh/relaynode/core/routing"
)

// Sender is the single-hop send/broadcast/enumerate capability the flood
// engine needs from the neighbor table, satisfied by *neighbor.Table.
type Sender interface {
	Send(to proto.NodeID, pkt *proto.Packet) bool
	Broadcast(except proto.NodeID, pkt *proto.Packet) int
	Ids() []proto.NodeID
}

// Config configures an Engine.
type Config struct {
	Self    proto.NodeID
	Routing *routing.Table
	Memory  *floodmem.Memory
	Sender  Sender
	Events  events.Sink

	// Logger for flood events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Engine mints flood broadcasts and handles the two flood packet kinds.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	counter ids.Counter
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	return &Engine{cfg: cfg, log: logger.WithGroup("flood")}
}

// Flood mints a fresh flood request and broadcasts it to every neighbor.
// It reports the PacketSent event for the broadcast and returns the flood
// id minted, so the caller (the main loop) can clear its need_flood flag.
func (e *Engine) Flood() uint64 {
	e.counter = e.counter.Next()
	floodID := uint64(e.counter)

	pkt := &proto.Packet{
		Header:    proto.RoutingHeader{},
		SessionID: ids.Compose(floodID, 0),
		Kind:      proto.PayloadFloodRequest,
		FloodRequest: proto.FloodRequest{
			FloodID:   floodID,
			Initiator: e.cfg.Self,
			Trace:     []proto.TraceHop{{Node: e.cfg.Self, Kind: proto.NodeServer}},
		},
	}

	e.cfg.Sender.Broadcast(e.cfg.Self, pkt)
	e.cfg.Events.Emit(events.Event{Kind: events.PacketSent, Packet: pkt})
	e.log.Debug("flood broadcast", "flood_id", floodID)
	return floodID
}

// OnFloodRequest applies the cycle-suppressing forwarding rule: terminate
// and bounce a response if the flood has already been seen or there is no
// neighbor to forward to besides the one it arrived on; otherwise
// broadcast it onward and remember it.
func (e *Engine) OnFloodRequest(pkt *proto.Packet, inbound proto.NodeID) {
	req := pkt.FloodRequest
	trace := append(append([]proto.TraceHop(nil), req.Trace...), proto.TraceHop{Node: e.cfg.Self, Kind: proto.NodeServer})

	seen := e.cfg.Memory.HasSeen(req.Initiator, req.FloodID)
	dead := !e.hasForwardTarget(inbound)

	if seen || dead {
		e.respond(req.FloodID, trace)
		return
	}

	e.cfg.Memory.Insert(req.Initiator, req.FloodID)

	fwd := pkt.Clone()
	fwd.FloodRequest.Trace = trace
	e.cfg.Sender.Broadcast(inbound, fwd)
	e.cfg.Events.Emit(events.Event{Kind: events.PacketSent, Packet: fwd})
}

// hasForwardTarget reports whether any neighbor other than inbound exists
// to forward a flood request to.
func (e *Engine) hasForwardTarget(inbound proto.NodeID) bool {
	for _, id := range e.cfg.Sender.Ids() {
		if id != inbound {
			return true
		}
	}
	return false
}

// respond mints a flood response carrying trace and sends it back along
// the reversed path, i.e. to whichever node the trace shows we received
// it from.
func (e *Engine) respond(floodID uint64, trace []proto.TraceHop) {
	nodes := make([]proto.NodeID, len(trace))
	for i, h := range trace {
		nodes[len(trace)-1-i] = h.Node
	}
	header := proto.RoutingHeader{Hops: nodes, HopIndex: 0}

	pkt := &proto.Packet{
		Header:    header,
		SessionID: ids.Compose(floodID, 0),
		Kind:      proto.PayloadFloodResponse,
		FloodResponse: proto.FloodResponse{
			FloodID: floodID,
			Trace:   trace,
		},
	}
	e.sendAlong(pkt)
}

// OnFloodResponse integrates the trace into the routing table if it has
// arrived back at its origin, or forwards it one more hop otherwise. It
// reports whether the routing table was updated, so the main loop knows
// to set its graph_updated flag and drain the pending queue.
func (e *Engine) OnFloodResponse(pkt *proto.Packet) bool {
	resp := pkt.FloodResponse
	if len(resp.Trace) == 0 {
		e.log.Warn("dropping flood response with empty trace", "flood_id", resp.FloodID)
		return false
	}
	if resp.Trace[0].Node == e.cfg.Self {
		e.cfg.Routing.UpdateFromTrace(resp.Trace)
		return true
	}
	e.sendAlong(pkt)
	return false
}

// sendAlong advances pkt.Header one hop and sends it to the node now
// current, emitting PacketSent on success or Shortcut if no channel is
// installed for that node.
func (e *Engine) sendAlong(pkt *proto.Packet) {
	next, hop, ok := pkt.Header.Advance()
	if !ok {
		e.cfg.Events.Emit(events.Event{Kind: events.Shortcut, Packet: pkt})
		return
	}
	fwd := pkt.Clone()
	fwd.Header = next
	if !e.cfg.Sender.Send(hop, fwd) {
		e.cfg.Events.Emit(events.Event{Kind: events.Shortcut, Packet: fwd})
		return
	}
	e.cfg.Events.Emit(events.Event{Kind: events.PacketSent, Packet: fwd})
}

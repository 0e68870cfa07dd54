// Package node wires the core packages (routing, flood, reassembly,
// sendstore, acknack, dispatch) into the stateful, channel-driven Engine
// that is one mesh node, per C9/C10 of the component table.
//
// Grounded on original_source/src/servers/mod.rs's GenericServer::run
// (select_biased! over the controller and packet channels) and
// kabili207-meshcore-go/device/router/router.go's HandlePacket gate
// sequence, re-expressed as this specification's priority-biased loop
// (§4.9: flood, then pending retry, then a supervisor-first select) and
// tagged-union packet dispatch instead of the firmware's bitfield header.
package node

import (
	"context"
	"log/slog"

	"github.com/dronemesh/relaynode/core/acknack"
	"github.com/dronemesh/relaynode/core/codec"
	"github.com/dronemesh/relaynode/core/dispatch"
	"github.com/dronemesh/relaynode/core/events"
	"github.com/dronemesh/relaynode/core/flood"
	"github.com/dronemesh/relaynode/core/floodmem"
	"github.com/dronemesh/relaynode/core/ids"
	"github.com/dronemesh/relaynode/core/neighbor"
	"github.com/dronemesh/relaynode/core/proto"
	"github.com/dronemesh/relaynode/core/reassembly"
	"github.com/dronemesh/relaynode/core/routing"
	"github.com/dronemesh/relaynode/core/sendstore"
)

// Config configures an Engine.
type Config struct {
	Self proto.NodeID

	// Handler answers decoded requests. Required.
	Handler dispatch.Handler

	// Commands is the supervisor command channel (AddSender/RemoveSender/
	// Shortcut). Required.
	Commands <-chan Command

	// Inbound is the channel this node's neighbors send packets on.
	// Required.
	Inbound <-chan *proto.Packet

	// Events receives PacketSent/Shortcut notifications. Defaults to
	// events.Discard.
	Events events.Sink

	// WindowSize overrides routing.DefaultWindowSize if non-zero.
	WindowSize uint32
	// Estimator overrides the default PDR EWMA estimator if non-nil.
	Estimator routing.Estimator
	// FloodMemoryCapacity overrides floodmem.DefaultCapacity if non-zero.
	FloodMemoryCapacity int

	// Logger for engine-level events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Engine is one mesh node: the routing table, flood engine, fragment
// reassembler, send-side store, and ack/nack handler it owns, plus the
// main cooperative loop (§4.9) that arbitrates between them.
type Engine struct {
	cfg Config
	log *slog.Logger

	neighbors  *neighbor.Table
	routingTbl *routing.Table
	mem        *floodmem.Memory
	floodEng   *flood.Engine
	reasm      *reassembly.Store
	sendStore  *sendstore.Store
	ackNack    *acknack.Handler

	needFlood    bool
	graphUpdated bool
}

// New creates an Engine with an initially empty neighbor set. Neighbors
// are installed exclusively through AddSender commands, per §4.10.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	log := logger.WithGroup("node")

	neighbors := neighbor.New()

	routingTbl := routing.New(routing.Config{
		Self:       cfg.Self,
		WindowSize: cfg.WindowSize,
		Estimator:  cfg.Estimator,
		Logger:     logger,
	})

	memCap := cfg.FloodMemoryCapacity
	var mem *floodmem.Memory
	if memCap > 0 {
		mem = floodmem.NewWithCapacity(memCap)
	} else {
		mem = floodmem.New()
	}

	floodEng := flood.New(flood.Config{
		Self:    cfg.Self,
		Routing: routingTbl,
		Memory:  mem,
		Sender:  neighbors,
		Events:  cfg.Events,
		Logger:  logger,
	})

	reasm := reassembly.New(reassembly.Config{Logger: logger})

	sendStore := sendstore.New(sendstore.Config{
		Self:    cfg.Self,
		Routing: routingTbl,
		Sender:  neighbors,
		Events:  cfg.Events,
		Logger:  logger,
	})

	e := &Engine{cfg: cfg, log: log, neighbors: neighbors, routingTbl: routingTbl,
		mem: mem, floodEng: floodEng, reasm: reasm, sendStore: sendStore}

	e.ackNack = acknack.New(acknack.Config{
		Routing:   routingTbl,
		SendStore: sendStore,
		NeedFlood: e.markNeedFlood,
		Logger:    logger,
	})

	return e
}

// Routing exposes the engine's routing table read-only, for peripheral
// consumers such as device/observability/topology that display live graph
// state without participating in routing decisions.
func (e *Engine) Routing() *routing.Table {
	return e.routingTbl
}

func (e *Engine) markNeedFlood() {
	e.needFlood = true
	e.graphUpdated = true
}

// Run executes the priority-biased cooperative loop of §4.9 until ctx is
// canceled. Per §5, nothing here ever spawns a goroutine — this call
// blocks the calling goroutine for the node's entire lifetime.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if e.needFlood {
			e.needFlood = false
			e.floodEng.Flood()
			continue
		}

		if e.graphUpdated {
			if sid, ok := e.sendStore.PopPending(); ok {
				if !e.sendStore.Resend(sid) {
					e.graphUpdated = false
				}
				continue
			}
			e.graphUpdated = false
		}

		// Non-blocking pre-check so supervisor commands win ties against
		// an equally-ready inbound packet, per §4.9 step 3.
		select {
		case cmd := <-e.cfg.Commands:
			e.handleCommand(cmd)
			continue
		default:
		}

		select {
		case cmd := <-e.cfg.Commands:
			e.handleCommand(cmd)
		case pkt := <-e.cfg.Inbound:
			e.handlePacket(pkt)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) handleCommand(cmd Command) {
	switch cmd.Kind {
	case CmdAddSender:
		e.neighbors.Add(cmd.Node, cmd.Channel)
		e.routingTbl.CheckAndAddEdge(e.cfg.Self, cmd.Node)
		e.needFlood = true
		e.graphUpdated = true

	case CmdRemoveSender:
		e.neighbors.Remove(cmd.Node)
		e.routingTbl.RemoveNode(cmd.Node)
		e.sendStore.RemoveNode(cmd.Node)
		e.needFlood = true
		e.graphUpdated = true

	case CmdShortcut:
		e.handlePacket(cmd.Packet)

	default:
		e.log.Warn("unknown supervisor command", "kind", cmd.Kind)
	}
}

func (e *Engine) handlePacket(pkt *proto.Packet) {
	switch pkt.Kind {
	case proto.PayloadFragment:
		e.handleFragment(pkt)

	case proto.PayloadAck:
		e.ackNack.OnAck(pkt.SessionID)

	case proto.PayloadNack:
		e.ackNack.OnNack(pkt.SessionID, pkt.Header, pkt.Nack)

	case proto.PayloadFloodRequest:
		inbound := e.inboundNeighbor(pkt.FloodRequest.Trace, pkt.FloodRequest.Initiator)
		e.floodEng.OnFloodRequest(pkt, inbound)

	case proto.PayloadFloodResponse:
		if e.floodEng.OnFloodResponse(pkt) {
			e.graphUpdated = true
		}

	default:
		e.log.Warn("dropping packet with unknown payload kind", "kind", pkt.Kind)
	}
}

// inboundNeighbor identifies the neighbor a flood request physically
// arrived from: whoever most recently appended itself to the trace, or
// the initiator itself if this is the first hop.
func (e *Engine) inboundNeighbor(trace []proto.TraceHop, initiator proto.NodeID) proto.NodeID {
	if len(trace) == 0 {
		return initiator
	}
	return trace[len(trace)-1].Node
}

// handleFragment folds a fragment into the reassembler, always acks it
// (§4.5), and on completion decodes and dispatches the request.
func (e *Engine) handleFragment(pkt *proto.Packet) {
	rid := ids.RequestIDOf(pkt.SessionID)
	result, complete := e.reasm.HandleFragment(pkt.Header, rid, pkt.Fragment)

	if sender, ok := pkt.Sender(); ok {
		e.sendAck(pkt.Header, sender, pkt.SessionID, pkt.Fragment.Index)
	}

	if !complete {
		return
	}

	req, err := dispatch.DecodeRequest(result.Payload)
	if err != nil {
		e.log.Error("undeserializable request, dropping", "sender", result.Sender, "rid", result.RID, "error", err)
		return
	}

	resp := e.cfg.Handler.Dispatch(req, result.Sender, result.RID)
	compressed, err := codec.ForMode(resp.Compression).Compress(resp.Encode())
	if err != nil {
		e.log.Error("failed to compress response", "error", err)
		return
	}
	e.sendStore.SendResponse(result.Sender, result.RID, result.Header, compressed)
}

// sendAck replies with Ack(index) routed by routing_header_with_hint(h,
// sender), per §4.5. Acks bypass the sent registry entirely — there is
// nothing to retry, only somewhere to report if delivery is impossible.
func (e *Engine) sendAck(h proto.RoutingHeader, sender proto.NodeID, sid uint64, index uint64) {
	hdr := e.routingTbl.RoutingHeaderWithHint(h, sender)
	pkt := &proto.Packet{
		Header:    hdr,
		SessionID: sid,
		Kind:      proto.PayloadAck,
		Ack:       proto.Ack{FragmentIndex: index},
	}

	advanced, hop, ok := hdr.Advance()
	if !ok {
		e.cfg.Events.Emit(events.Event{Kind: events.Shortcut, Packet: pkt})
		return
	}
	pkt.Header = advanced
	if !e.neighbors.Send(hop, pkt) {
		e.cfg.Events.Emit(events.Event{Kind: events.Shortcut, Packet: pkt})
		return
	}
	e.cfg.Events.Emit(events.Event{Kind: events.PacketSent, Packet: pkt})
}

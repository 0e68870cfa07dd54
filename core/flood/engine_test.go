package flood

import (
	"testing"

	"github.com/dronemesh/relaynode/core/events"
	"github.com/dronemesh/relaynode/core/floodmem"
	"github.com/dronemesh/relaynode/core/neighbor"
	"github.com/dronemesh/relaynode/core/proto"
	"github.com/dronemesh/relaynode/core/routing"
)

func drain(t *testing.T, ch chan *proto.Packet) *proto.Packet {
	t.Helper()
	select {
	case p := <-ch:
		return p
	default:
		t.Fatal("expected a packet on the channel, got none")
		return nil
	}
}

func TestFloodBroadcastsToEveryNeighbor(t *testing.T) {
	nb := neighbor.New()
	a, b := make(chan *proto.Packet, 1), make(chan *proto.Packet, 1)
	nb.Add(2, a)
	nb.Add(3, b)

	var got []events.Event
	eng := New(Config{
		Self:    1,
		Routing: routing.New(routing.Config{Self: 1}),
		Memory:  floodmem.New(),
		Sender:  nb,
		Events:  events.SinkFunc(func(e events.Event) { got = append(got, e) }),
	})

	floodID := eng.Flood()

	p := drain(t, a)
	if p.FloodRequest.FloodID != floodID || p.FloodRequest.Initiator != 1 {
		t.Errorf("unexpected flood request: %+v", p.FloodRequest)
	}
	_ = drain(t, b)

	if len(got) != 1 || got[0].Kind != events.PacketSent {
		t.Errorf("events = %+v, want one PacketSent", got)
	}
}

func TestOnFloodRequestForwardsWhenUnseen(t *testing.T) {
	nb := neighbor.New()
	in, out := make(chan *proto.Packet, 1), make(chan *proto.Packet, 1)
	nb.Add(9, in)  // inbound neighbor, excluded from forward broadcast
	nb.Add(2, out) // the only other neighbor

	mem := floodmem.New()
	eng := New(Config{
		Self:    1,
		Routing: routing.New(routing.Config{Self: 1}),
		Memory:  mem,
		Sender:  nb,
	})

	pkt := &proto.Packet{
		Kind: proto.PayloadFloodRequest,
		FloodRequest: proto.FloodRequest{
			FloodID:   42,
			Initiator: 9,
			Trace:     []proto.TraceHop{{Node: 9, Kind: proto.NodeServer}},
		},
	}
	eng.OnFloodRequest(pkt, 9)

	select {
	case <-in:
		t.Error("inbound neighbor should not receive the forwarded flood")
	default:
	}
	fwd := drain(t, out)
	if len(fwd.FloodRequest.Trace) != 2 || fwd.FloodRequest.Trace[1].Node != 1 {
		t.Errorf("forwarded trace = %+v, want self appended", fwd.FloodRequest.Trace)
	}
	if !mem.HasSeen(9, 42) {
		t.Error("expected flood id to be recorded")
	}
}

func TestOnFloodRequestBouncesWhenAlreadySeen(t *testing.T) {
	nb := neighbor.New()
	in := make(chan *proto.Packet, 1)
	nb.Add(9, in)

	mem := floodmem.New()
	mem.Insert(9, 42)

	eng := New(Config{
		Self:    1,
		Routing: routing.New(routing.Config{Self: 1}),
		Memory:  mem,
		Sender:  nb,
	})

	pkt := &proto.Packet{
		Kind: proto.PayloadFloodRequest,
		FloodRequest: proto.FloodRequest{
			FloodID:   42,
			Initiator: 9,
			Trace:     []proto.TraceHop{{Node: 9, Kind: proto.NodeServer}},
		},
	}
	eng.OnFloodRequest(pkt, 9)

	resp := drain(t, in)
	if resp.Kind != proto.PayloadFloodResponse {
		t.Fatalf("expected a flood response, got kind %v", resp.Kind)
	}
	if len(resp.FloodResponse.Trace) != 2 {
		t.Errorf("response trace = %+v, want self appended", resp.FloodResponse.Trace)
	}
}

func TestOnFloodRequestBouncesWhenDeadEnd(t *testing.T) {
	nb := neighbor.New()
	in := make(chan *proto.Packet, 1)
	nb.Add(9, in) // only neighbor is the inbound one: dead end

	eng := New(Config{
		Self:    1,
		Routing: routing.New(routing.Config{Self: 1}),
		Memory:  floodmem.New(),
		Sender:  nb,
	})

	pkt := &proto.Packet{
		Kind: proto.PayloadFloodRequest,
		FloodRequest: proto.FloodRequest{
			FloodID:   7,
			Initiator: 9,
			Trace:     []proto.TraceHop{{Node: 9, Kind: proto.NodeServer}},
		},
	}
	eng.OnFloodRequest(pkt, 9)

	resp := drain(t, in)
	if resp.Kind != proto.PayloadFloodResponse {
		t.Errorf("expected a bounced flood response, got kind %v", resp.Kind)
	}
}

func TestOnFloodResponseIntegratesWhenHeadIsSelf(t *testing.T) {
	rt := routing.New(routing.Config{Self: 1})
	eng := New(Config{
		Self:    1,
		Routing: rt,
		Memory:  floodmem.New(),
		Sender:  neighbor.New(),
	})

	pkt := &proto.Packet{
		Kind: proto.PayloadFloodResponse,
		FloodResponse: proto.FloodResponse{
			FloodID: 1,
			Trace: []proto.TraceHop{
				{Node: 1, Kind: proto.NodeServer},
				{Node: 2, Kind: proto.NodeDrone},
			},
		},
	}
	eng.OnFloodResponse(pkt)

	if !rt.ContainsEdge(1, 2) {
		t.Error("expected the trace to be folded into the routing table")
	}
}

func TestOnFloodResponseForwardsWhenHeadIsNotSelf(t *testing.T) {
	nb := neighbor.New()
	ch := make(chan *proto.Packet, 1)
	nb.Add(3, ch)

	eng := New(Config{
		Self:    1,
		Routing: routing.New(routing.Config{Self: 1}),
		Memory:  floodmem.New(),
		Sender:  nb,
	})

	pkt := &proto.Packet{
		Header: proto.RoutingHeader{Hops: []proto.NodeID{1, 3}, HopIndex: 0},
		Kind:   proto.PayloadFloodResponse,
		FloodResponse: proto.FloodResponse{
			FloodID: 5,
			Trace:   []proto.TraceHop{{Node: 9, Kind: proto.NodeServer}},
		},
	}
	eng.OnFloodResponse(pkt)

	fwd := drain(t, ch)
	if fwd.Header.HopIndex != 1 {
		t.Errorf("forwarded HopIndex = %d, want 1", fwd.Header.HopIndex)
	}
}

func TestOnFloodResponseShortcutsWhenNoChannel(t *testing.T) {
	var got []events.Event
	eng := New(Config{
		Self:    1,
		Routing: routing.New(routing.Config{Self: 1}),
		Memory:  floodmem.New(),
		Sender:  neighbor.New(),
		Events:  events.SinkFunc(func(e events.Event) { got = append(got, e) }),
	})

	pkt := &proto.Packet{
		Header: proto.RoutingHeader{Hops: []proto.NodeID{1, 3}, HopIndex: 0},
		Kind:   proto.PayloadFloodResponse,
		FloodResponse: proto.FloodResponse{
			FloodID: 5,
			Trace:   []proto.TraceHop{{Node: 9, Kind: proto.NodeServer}},
		},
	}
	eng.OnFloodResponse(pkt)

	if len(got) != 1 || got[0].Kind != events.Shortcut {
		t.Errorf("events = %+v, want one Shortcut", got)
	}
}

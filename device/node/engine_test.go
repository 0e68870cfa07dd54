package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dronemesh/relaynode/core/codec"
	"github.com/dronemesh/relaynode/core/dispatch"
	"github.com/dronemesh/relaynode/core/ids"
	"github.com/dronemesh/relaynode/core/proto"
)

// mapFS is an in-memory dispatch.FileSystem fake used in place of DirFS.
type mapFS map[string][]byte

func (m mapFS) List() ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names, nil
}

func (m mapFS) Read(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

// spyHandler counts Dispatch calls and delegates to an inner handler.
type spyHandler struct {
	inner dispatch.Handler
	calls int
}

func (s *spyHandler) Dispatch(req dispatch.Request, sourceID proto.NodeID, rid uint16) dispatch.Response {
	s.calls++
	return s.inner.Dispatch(req, sourceID, rid)
}

func newEngine(t *testing.T, self proto.NodeID, handler dispatch.Handler) (*Engine, chan Command, chan *proto.Packet, context.CancelFunc) {
	t.Helper()
	cmds := make(chan Command, 8)
	inbound := make(chan *proto.Packet, 8)
	e := New(Config{Self: self, Handler: handler, Commands: cmds, Inbound: inbound})

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	return e, cmds, inbound, cancel
}

func readPacket(t *testing.T, ch chan *proto.Packet) *proto.Packet {
	t.Helper()
	select {
	case pkt := <-ch:
		return pkt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a packet")
		return nil
	}
}

func oneFragmentPacket(hops []proto.NodeID, hopIndex int, sid uint64, payload []byte) *proto.Packet {
	var data [proto.FSIZE]byte
	n := copy(data[:], payload)
	return &proto.Packet{
		Header:    proto.RoutingHeader{Hops: hops, HopIndex: hopIndex},
		SessionID: sid,
		Kind:      proto.PayloadFragment,
		Fragment:  proto.Fragment{Index: 0, Total: 1, Length: uint8(n), Data: data},
	}
}

// S1 — Type query, happy path: one client neighbor directly attached to
// the file server; a single-fragment Request{Type, None} gets one Ack and
// one single-fragment Response{FileServer, None} back.
func TestS1TypeQueryHappyPath(t *testing.T) {
	const self, client proto.NodeID = 11, 12
	fs := NewFileServer(FileServerConfig{FS: mapFS{}})
	_, cmds, inbound, cancel := newEngine(t, self, fs)
	defer cancel()

	toClient := make(chan *proto.Packet, 8)
	cmds <- AddSender(client, toClient)

	// AddSender sets need_flood; drain the resulting broadcast first.
	flood := readPacket(t, toClient)
	if flood.Kind != proto.PayloadFloodRequest {
		t.Fatalf("Kind = %v, want PayloadFloodRequest", flood.Kind)
	}

	req := dispatch.Request{Compression: codec.CompressionNone, Content: dispatch.Content{Kind: dispatch.ContentType}}
	sid := ids.Compose(0, 7)
	inbound <- oneFragmentPacket([]proto.NodeID{client, self}, 1, sid, req.Encode())

	ack := readPacket(t, toClient)
	if ack.Kind != proto.PayloadAck || ack.Ack.FragmentIndex != 0 || ack.SessionID != sid {
		t.Errorf("ack = %+v, want Ack(0) for sid %d", ack, sid)
	}

	respPkt := readPacket(t, toClient)
	if respPkt.Kind != proto.PayloadFragment {
		t.Fatalf("Kind = %v, want PayloadFragment", respPkt.Kind)
	}
	resp, err := dispatch.DecodeResponse(respPkt.Fragment.Data[:respPkt.Fragment.Length])
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != dispatch.ResponseServerType || resp.ServerKind != dispatch.FileServerKind {
		t.Errorf("resp = %+v, want ResponseServerType/FileServerKind", resp)
	}
}

// S2 — Fragment reassembly: the dispatcher fires exactly once, after the
// second of two fragments sharing rid=3 arrives.
func TestS2FragmentReassembly(t *testing.T) {
	const self, client proto.NodeID = 11, 12
	spy := &spyHandler{inner: NewFileServer(FileServerConfig{FS: mapFS{}})}
	e, cmds, inbound, cancel := newEngine(t, self, spy)
	defer cancel()

	toClient := make(chan *proto.Packet, 8)
	cmds <- AddSender(client, toClient)
	readPacket(t, toClient) // drain the AddSender flood

	rid := uint16(3)
	sid0 := ids.Compose(0, rid)
	sid1 := ids.Compose(1, rid)
	half := make([]byte, proto.FSIZE)
	for i := range half {
		half[i] = byte(i)
	}

	inbound <- &proto.Packet{
		Header: proto.RoutingHeader{Hops: []proto.NodeID{client, self}, HopIndex: 1}, SessionID: sid0,
		Kind: proto.PayloadFragment, Fragment: proto.Fragment{Index: 0, Total: 2, Length: proto.FSIZE, Data: [proto.FSIZE]byte(half)},
	}
	readPacket(t, toClient) // the ack for fragment 0

	// Give the loop a moment to have definitely processed the first
	// fragment before we check reassembly state.
	time.Sleep(20 * time.Millisecond)
	if spy.calls != 0 {
		t.Errorf("calls after first fragment = %d, want 0", spy.calls)
	}
	if got := e.reasm.PendingCount(); got != 1 {
		t.Errorf("PendingCount after first fragment = %d, want 1", got)
	}

	inbound <- &proto.Packet{
		Header: proto.RoutingHeader{Hops: []proto.NodeID{client, self}, HopIndex: 1}, SessionID: sid1,
		Kind: proto.PayloadFragment, Fragment: proto.Fragment{Index: 1, Total: 2, Length: proto.FSIZE, Data: [proto.FSIZE]byte(half)},
	}
	readPacket(t, toClient) // the ack for fragment 1
	readPacket(t, toClient) // the response fragment (bytes 0,1 decode as a TextList request)

	if spy.calls != 1 {
		t.Errorf("calls after second fragment = %d, want 1", spy.calls)
	}
	if got := e.reasm.PendingCount(); got != 0 {
		t.Errorf("PendingCount after completion = %d, want 0", got)
	}
}

// S3 — Nack(Dropped) triggers a retry on the same registry entry without
// removing it.
func TestS3NackDroppedRetriesWithoutRemoving(t *testing.T) {
	const self, relay, receiver proto.NodeID = 1, 2, 3
	e, cmds, inbound, cancel := newEngine(t, self, NewFileServer(FileServerConfig{FS: mapFS{}}))
	defer cancel()

	toRelay := make(chan *proto.Packet, 8)
	cmds <- AddSender(relay, toRelay)
	readPacket(t, toRelay) // drain flood

	e.routingTbl.CheckAndAddEdge(relay, receiver)

	e.sendStore.SendResponse(receiver, 9, proto.RoutingHeader{}, []byte("payload"))
	sent := readPacket(t, toRelay)
	sid := sent.SessionID

	nack := &proto.Packet{
		Header:    proto.RoutingHeader{Hops: []proto.NodeID{relay, self}, HopIndex: 1},
		SessionID: sid,
		Kind:      proto.PayloadNack,
		Nack:      proto.Nack{FragmentIndex: 0, Kind: proto.NackDropped},
	}
	inbound <- nack

	retry := readPacket(t, toRelay)
	if retry.SessionID != sid {
		t.Errorf("retried sid = %d, want %d", retry.SessionID, sid)
	}
	if _, ok := e.sendStore.Get(sid); !ok {
		t.Error("sent-registry entry should still be present after a Dropped nack")
	}
}

// S4 — Nack(ErrorInRouting) prunes the graph and triggers a re-flood.
func TestS4NackErrorInRoutingPrunesGraphAndReflloods(t *testing.T) {
	const self, relay, receiver proto.NodeID = 1, 2, 3
	e, cmds, inbound, cancel := newEngine(t, self, NewFileServer(FileServerConfig{FS: mapFS{}}))
	defer cancel()

	toRelay := make(chan *proto.Packet, 8)
	cmds <- AddSender(relay, toRelay)
	readPacket(t, toRelay) // drain flood

	e.routingTbl.CheckAndAddEdge(relay, receiver)
	e.sendStore.SendResponse(receiver, 9, proto.RoutingHeader{}, []byte("payload"))
	sent := readPacket(t, toRelay)
	sid := sent.SessionID

	nack := &proto.Packet{
		Header:    proto.RoutingHeader{Hops: []proto.NodeID{relay, self}, HopIndex: 1},
		SessionID: sid,
		Kind:      proto.PayloadNack,
		Nack:      proto.Nack{FragmentIndex: 0, Kind: proto.NackErrorInRouting, Node: relay},
	}
	inbound <- nack

	// RemoveNode only prunes the routing graph; the neighbor channel
	// itself stays installed, so the reflood still reaches toRelay.
	reflood := readPacket(t, toRelay)
	if reflood.Kind != proto.PayloadFloodRequest {
		t.Fatalf("Kind = %v, want PayloadFloodRequest (reflood)", reflood.Kind)
	}
	if e.routingTbl.HasNode(relay) {
		t.Error("relay should have been removed from the routing table")
	}
}

// S5 — AddSender restores reachability for an isolated node: an edge
// appears, a flood is (re)issued, and it reaches the new channel.
func TestS5AddSenderRestoresReachability(t *testing.T) {
	const self, newNeighbor proto.NodeID = 1, 5
	e, cmds, _, cancel := newEngine(t, self, NewFileServer(FileServerConfig{FS: mapFS{}}))
	defer cancel()

	ch := make(chan *proto.Packet, 8)
	cmds <- AddSender(newNeighbor, ch)

	flood := readPacket(t, ch)
	if flood.Kind != proto.PayloadFloodRequest {
		t.Fatalf("Kind = %v, want PayloadFloodRequest", flood.Kind)
	}
	if !e.routingTbl.ContainsEdge(self, newNeighbor) {
		t.Error("expected edge self->newNeighbor after AddSender")
	}
}

// S6 — Huffman round trip: a 4 KiB text file survives compress, chunk,
// and decompress, and every fragment can be acked to empty the registry.
func TestS6HuffmanRoundTrip(t *testing.T) {
	const self, client proto.NodeID = 11, 12
	content := make([]byte, 4096)
	for i := range content {
		content[i] = byte('a' + i%7) // low-entropy text, compresses well
	}
	fs := mapFS{"X": content}
	e, cmds, inbound, cancel := newEngine(t, self, NewFileServer(FileServerConfig{FS: fs}))
	defer cancel()

	toClient := make(chan *proto.Packet, 64)
	cmds <- AddSender(client, toClient)
	readPacket(t, toClient) // drain flood

	req := dispatch.Request{Compression: codec.CompressionHuffman, Content: dispatch.Content{Kind: dispatch.ContentText, Path: "X"}}
	sid := ids.Compose(0, 42)
	inbound <- oneFragmentPacket([]proto.NodeID{client, self}, 1, sid, req.Encode())
	readPacket(t, toClient) // ack

	var compressed []byte
	var sids []uint64
	for {
		pkt := readPacket(t, toClient)
		compressed = append(compressed, pkt.Fragment.Data[:pkt.Fragment.Length]...)
		sids = append(sids, pkt.SessionID)
		if pkt.Fragment.Index+1 == pkt.Fragment.Total {
			break
		}
	}

	decompressed, err := codec.Huffman{}.Decompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := dispatch.DecodeResponse(decompressed)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Data) != string(content) {
		t.Error("decompressed response payload does not match the served file")
	}

	for _, s := range sids {
		inbound <- &proto.Packet{
			Header: proto.RoutingHeader{Hops: []proto.NodeID{client, self}, HopIndex: 1}, SessionID: s,
			Kind: proto.PayloadAck, Ack: proto.Ack{FragmentIndex: 0},
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := e.sendStore.Len(); got != 0 {
		t.Errorf("sent registry has %d entries left, want 0", got)
	}
}

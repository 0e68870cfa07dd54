// Package sendstore implements the send-side session store: the sent
// registry that remembers every in-flight fragment by its session id, the
// LIFO pending queue for fragments with no viable route yet, and the
// fragmentation/resend logic of §4.6.
//
// Construction style is grounded on
// kabili207-meshcore-go/core/ack/tracker.go's Tracker (Config struct,
// New(cfg), Logger fallback to slog.Default()); the registry itself is new
// since the teacher tracks pending acks by a 4-byte hash with timeout
// callbacks, while this specification tracks in-flight fragments by a
// 64-bit session id with no timeout, only retry-on-nack/retry-on-graph-
// update (core/acknack and the main loop drive retries explicitly).
package sendstore

import (
	"log/slog"

	"github.com/dronemesh/relaynode/core/events"
	"github.com/dronemesh/relaynode/core/ids"
	"github.com/dronemesh/relaynode/core/proto"
	"github.com/dronemesh/relaynode/core/routing"
)

// Sender is the single-hop send capability sendstore needs from the
// neighbor table, satisfied by *neighbor.Table.
type Sender interface {
	Send(to proto.NodeID, pkt *proto.Packet) bool
}

// Entry records everything needed to resend one in-flight fragment.
type Entry struct {
	Receiver proto.NodeID
	Hops     []proto.NodeID // full path in use when last sent
	Index    uint64
	Total    uint64
	Data     [proto.FSIZE]byte
	Length   uint8
}

// Config configures a Store.
type Config struct {
	Self    proto.NodeID
	Routing *routing.Table
	Sender  Sender
	Events  events.Sink

	// Logger for sendstore events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Store owns the sent registry, the pending queue, and the running
// fragment session counter.
type Store struct {
	cfg     Config
	log     *slog.Logger
	counter ids.Counter
	sent    map[uint64]*Entry
	pending []uint64 // LIFO: back of the slice is the top
}

// New creates an empty Store.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	return &Store{
		cfg:  cfg,
		log:  logger.WithGroup("sendstore"),
		sent: make(map[uint64]*Entry),
	}
}

// Get returns the registry entry for sid, if any.
func (st *Store) Get(sid uint64) (*Entry, bool) {
	e, ok := st.sent[sid]
	return e, ok
}

// Remove deletes sid from the registry. Returns true if it was present.
func (st *Store) Remove(sid uint64) bool {
	if _, ok := st.sent[sid]; !ok {
		return false
	}
	delete(st.sent, sid)
	return true
}

// PushPending pushes sid onto the back of the pending queue.
func (st *Store) PushPending(sid uint64) {
	st.pending = append(st.pending, sid)
}

// PopPending pops and returns the most recently pushed sid (LIFO, pop
// from the back), per §4.9 step 2: "most recently stalled is retried
// first".
func (st *Store) PopPending() (uint64, bool) {
	n := len(st.pending)
	if n == 0 {
		return 0, false
	}
	sid := st.pending[n-1]
	st.pending = st.pending[:n-1]
	return sid, true
}

// PendingLen reports how many sids are currently parked.
func (st *Store) PendingLen() int {
	return len(st.pending)
}

// Len reports how many entries remain in the sent registry, regardless of
// whether they are currently parked.
func (st *Store) Len() int {
	return len(st.sent)
}

// RemoveNode drops every pending sid whose registry entry targets
// receiver, since no future graph change will ever make that route live
// again. Not part of the original's pending-queue behavior (its revision
// left orphaned pending fragments in place); added so a removed node
// cannot pin the queue with unrecoverable entries.
func (st *Store) RemoveNode(receiver proto.NodeID) {
	kept := st.pending[:0]
	for _, sid := range st.pending {
		e, ok := st.sent[sid]
		if ok && e.Receiver == receiver {
			delete(st.sent, sid)
			continue
		}
		kept = append(kept, sid)
	}
	st.pending = kept
}

// SendResponse builds a routing header toward receiver (preferring a
// fresh shortest path, falling back to the hint in receivedHdr), chunks
// payload into FSIZE fragments zero-padded at the tail, and sends or
// parks each one, per §4.6.
func (st *Store) SendResponse(receiver proto.NodeID, rid uint16, receivedHdr proto.RoutingHeader, payload []byte) {
	responseHdr := st.cfg.Routing.RoutingHeaderWithHint(receivedHdr, receiver)
	if responseHdr.Len() < 2 {
		st.log.Error("no usable routing header for response", "receiver", receiver, "rid", rid)
		return
	}

	fragments := chunk(payload)
	total := uint64(len(fragments))

	for i, data := range fragments {
		st.counter = st.counter.Next()
		sid := st.counter.Compose(rid)

		e := &Entry{
			Receiver: receiver,
			Hops:     append([]proto.NodeID(nil), responseHdr.Hops...),
			Index:    uint64(i),
			Total:    total,
			Data:     data.bytes,
			Length:   data.length,
		}
		st.sent[sid] = e

		pkt := st.buildPacket(sid, responseHdr, e)
		advanced, nextHop, ok := responseHdr.Advance()
		if ok {
			pkt.Header = advanced
			if st.cfg.Sender.Send(nextHop, pkt) {
				st.cfg.Events.Emit(events.Event{Kind: events.PacketSent, Packet: pkt})
				continue
			}
		}
		st.PushPending(sid)
	}
}

// Resend recomputes a shortest path to entry's receiver and retries
// delivery. It returns true if the fragment was sent, false if it had to
// be re-parked on the pending queue (in which case the caller is
// responsible for clearing its graph_updated flag, per §4.6).
func (st *Store) Resend(sid uint64) bool {
	e, ok := st.sent[sid]
	if !ok {
		st.log.Warn("resend requested for unknown session id", "sid", sid)
		return false
	}

	path, ok := st.cfg.Routing.ShortestPath(st.cfg.Self, e.Receiver)
	if ok {
		hdr := proto.HeaderFromPath(path)
		advanced, nextHop, ok2 := hdr.Advance()
		if ok2 && st.trySend(sid, e, hdr, advanced, nextHop) {
			return true
		}
	}

	st.PushPending(sid)
	return false
}

func (st *Store) trySend(sid uint64, e *Entry, hdr, advanced proto.RoutingHeader, nextHop proto.NodeID) bool {
	pkt := st.buildPacket(sid, hdr, e)
	pkt.Header = advanced
	if !st.cfg.Sender.Send(nextHop, pkt) {
		return false
	}
	e.Hops = append([]proto.NodeID(nil), hdr.Hops...)
	st.cfg.Events.Emit(events.Event{Kind: events.PacketSent, Packet: pkt})
	return true
}

func (st *Store) buildPacket(sid uint64, hdr proto.RoutingHeader, e *Entry) *proto.Packet {
	return &proto.Packet{
		Header:    hdr,
		SessionID: sid,
		Kind:      proto.PayloadFragment,
		Fragment: proto.Fragment{
			Index:  e.Index,
			Total:  e.Total,
			Length: e.Length,
			Data:   e.Data,
		},
	}
}

type fragmentData struct {
	bytes  [proto.FSIZE]byte
	length uint8
}

// chunk splits payload into FSIZE-byte fragments, zero-padding the final
// one. An empty payload still yields exactly one (all-zero) fragment, so
// every response has at least one fragment to acknowledge.
func chunk(payload []byte) []fragmentData {
	if len(payload) == 0 {
		return []fragmentData{{}}
	}
	var out []fragmentData
	for off := 0; off < len(payload); off += proto.FSIZE {
		end := off + proto.FSIZE
		if end > len(payload) {
			end = len(payload)
		}
		var f fragmentData
		n := copy(f.bytes[:], payload[off:end])
		f.length = uint8(n)
		out = append(out, f)
	}
	return out
}

// Package reassembly implements the fragment reassembler keyed by
// (sender, request id), per §4.5.
//
// Grounded on kabili207-meshcore-go/core/multipart/multipart.go's
// Reassembler (reassemblyKey, reassemblyState, pending map,
// HandleFragment/assemble shape), adapted from that package's
// remaining-count fragment framing to this specification's fixed
// fragment-index/total framing, and from time-based expiry to an
// explicit preallocated-slot completion count since every fragment's
// total is known from its first arrival.
package reassembly

import (
	"log/slog"

	"github.com/dronemesh/relaynode/core/proto"
)

type key struct {
	sender proto.NodeID
	rid    uint16
}

type entry struct {
	slots   [][proto.FSIZE]byte
	filled  []bool
	written int
	total   uint64
	header  proto.RoutingHeader
}

// Store collects MsgFragment payloads per (sender, rid) and hands back
// the concatenated payload once every slot has been filled.
type Store struct {
	log     *slog.Logger
	pending map[key]*entry
}

// Config configures a Store.
type Config struct {
	// Logger for reassembly events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// New creates an empty Store.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		log:     logger.WithGroup("reassembly"),
		pending: make(map[key]*entry),
	}
}

// Result is returned by HandleFragment when the last fragment of a
// request arrives and the full payload can be handed to the dispatcher.
type Result struct {
	Sender  proto.NodeID
	RID     uint16
	Header  proto.RoutingHeader
	Payload []byte
}

// HandleFragment folds one fragment of request id rid, arriving with
// routing header h, into the reassembly state for its (sender, rid) key.
// It returns a Result with ok=true exactly when this fragment completed
// the set; writes to an already-filled slot are tolerated silently
// (possible duplicate), per §4.5.
func (s *Store) HandleFragment(h proto.RoutingHeader, rid uint16, frag proto.Fragment) (Result, bool) {
	if len(h.Hops) == 0 {
		s.log.Warn("dropping fragment with empty routing header", "rid", rid)
		return Result{}, false
	}
	sender := h.Hops[0]

	k := key{sender: sender, rid: rid}
	e, ok := s.pending[k]
	if !ok {
		e = &entry{
			slots:  make([][proto.FSIZE]byte, frag.Total),
			filled: make([]bool, frag.Total),
			total:  frag.Total,
			header: h,
		}
		s.pending[k] = e
	}

	if frag.Index >= e.total {
		s.log.Warn("dropping out-of-range fragment index", "sender", sender, "rid", rid, "index", frag.Index, "total", e.total)
		return Result{}, false
	}
	if !e.filled[frag.Index] {
		e.slots[frag.Index] = frag.Data
		e.filled[frag.Index] = true
		e.written++
	}

	if uint64(e.written) != e.total {
		return Result{}, false
	}

	delete(s.pending, k)
	payload := make([]byte, 0, int(e.total)*proto.FSIZE)
	for _, slot := range e.slots {
		payload = append(payload, slot[:]...)
	}
	return Result{Sender: sender, RID: rid, Header: e.header, Payload: payload}, true
}

// PendingCount returns the number of in-progress reassemblies.
func (s *Store) PendingCount() int {
	return len(s.pending)
}

// Package acknack implements the ack/nack handler of §4.7: feeding PDR
// observations back into the routing table, pruning dead nodes, and
// triggering retries through core/sendstore.
//
// Grounded on original_source/src/servers/packet_handling/mod.rs's
// handle_ack/handle_nack (the exact hop ranges fed to update_pdr, and the
// per-NackKind dispatch), re-expressed in the Config+New construction
// style kabili207-meshcore-go/core/ack/tracker.go uses for its own
// ack-adjacent package.
package acknack

import (
	"log/slog"

	"github.com/dronemesh/relaynode/core/proto"
	"github.com/dronemesh/relaynode/core/routing"
	"github.com/dronemesh/relaynode/core/sendstore"
)

// Config configures a Handler.
type Config struct {
	Routing   *routing.Table
	SendStore *sendstore.Store

	// NeedFlood is called whenever topology loss requires a fresh flood,
	// per the ErrorInRouting case.
	NeedFlood func()

	// Logger for ack/nack events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Handler applies incoming Ack/Nack payloads to the routing table and the
// send-side store.
type Handler struct {
	cfg Config
	log *slog.Logger
}

// New creates a Handler with the given configuration.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NeedFlood == nil {
		cfg.NeedFlood = func() {}
	}
	return &Handler{cfg: cfg, log: logger.WithGroup("acknack")}
}

// OnAck removes the sent-registry entry for sid and feeds an ack
// observation into every interior hop of the path it traveled.
func (h *Handler) OnAck(sid uint64) {
	e, ok := h.cfg.SendStore.Get(sid)
	if !ok {
		h.log.Warn("ack for unknown session id", "sid", sid)
		return
	}
	h.cfg.SendStore.Remove(sid)
	for _, hop := range interiorHops(e.Hops) {
		h.cfg.Routing.UpdatePDR(hop, true)
	}
}

// OnNack dispatches on nack.Kind per §4.7, then always retries delivery
// via sendstore.Resend.
func (h *Handler) OnNack(sid uint64, receivedHdr proto.RoutingHeader, nack proto.Nack) {
	switch nack.Kind {
	case proto.NackDropped:
		h.feedDropped(receivedHdr)

	case proto.NackErrorInRouting:
		h.cfg.Routing.RemoveNode(nack.Node)
		h.cfg.SendStore.RemoveNode(nack.Node)
		h.cfg.NeedFlood()

	case proto.NackDestinationIsDrone:
		h.log.Error("destination is a drone: contract violation", "sid", sid)

	case proto.NackUnexpectedRecipient:
		h.log.Warn("unexpected recipient", "sid", sid, "node", nack.Node)

	default:
		h.log.Warn("unknown nack kind", "kind", nack.Kind, "sid", sid)
	}

	h.cfg.SendStore.Resend(sid)
}

// feedDropped charges one nack observation to the dropper's adjacent
// neighbor (the first hop in receivedHdr) and an ack observation to every
// other interior hop, per §4.7's Dropped case. The final hop is the
// receiving endpoint, never a drone, and must never receive a PDR
// observation.
func (h *Handler) feedDropped(receivedHdr proto.RoutingHeader) {
	hops := receivedHdr.Hops
	if len(hops) < 2 {
		h.log.Warn("dropped-nack header too short to carry hop information", "len", len(hops))
		return
	}
	h.cfg.Routing.UpdatePDR(hops[0], false)
	for _, hop := range hops[1 : len(hops)-1] {
		h.cfg.Routing.UpdatePDR(hop, true)
	}
}

// interiorHops returns every hop in path except the two endpoints. Paths
// shorter than 3 nodes have no interior hops.
func interiorHops(path []proto.NodeID) []proto.NodeID {
	if len(path) < 3 {
		return nil
	}
	return path[1 : len(path)-1]
}

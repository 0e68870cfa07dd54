package routing

import "github.com/dronemesh/relaynode/core/proto"

// UpdateFromTrace folds a completed flood trace into the graph, per §4.3.
// Consecutive (a, b) pairs are classified by node kind:
//
//   - Drone/Drone: both directions are relayable, so edges a->b and b->a
//     are both added.
//   - Drone/non-Drone: we only record an edge we can actually traverse.
//     If the non-drone endpoint is this node itself, the drone really did
//     just deliver to us, so a->b is added. Otherwise we cannot vouch for
//     a->b (the non-drone endpoint may not forward at all), but the trace
//     still tells us the endpoint can reach the drone, so the flipped edge
//     b->a is added instead.
//   - non-Drone/Drone: the symmetric case, gated on whether the non-drone
//     endpoint is self.
//   - non-Drone/non-Drone: two leaves can never be directly mesh-adjacent;
//     the pair is logged and discarded.
func (t *Table) UpdateFromTrace(trace []proto.TraceHop) {
	for i := 0; i+1 < len(trace); i++ {
		a, b := trace[i], trace[i+1]
		switch {
		case a.Kind == proto.NodeDrone && b.Kind == proto.NodeDrone:
			t.CheckAndAddEdge(a.Node, b.Node)
			t.CheckAndAddEdge(b.Node, a.Node)

		case a.Kind == proto.NodeDrone && b.Kind != proto.NodeDrone:
			if b.Node == t.cfg.Self {
				t.CheckAndAddEdge(a.Node, b.Node)
			} else {
				t.CheckAndAddEdge(b.Node, a.Node)
			}

		case a.Kind != proto.NodeDrone && b.Kind == proto.NodeDrone:
			if a.Node == t.cfg.Self {
				t.CheckAndAddEdge(a.Node, b.Node)
			} else {
				t.CheckAndAddEdge(b.Node, a.Node)
			}

		default:
			t.log.Warn("discarding non-drone/non-drone trace pair",
				"from", a.Node, "to", b.Node)
		}
	}
}

// UpdateFromHeader folds a received source-routing header into the graph,
// per §4.3. Headers shorter than 3 hops carry no interior relay information
// and are ignored. Interior hops are assumed mutually relayable and get
// bidirectional edges; the hop adjacent to each endpoint additionally gets
// a one-way edge toward that endpoint, since an endpoint may itself be a
// non-drone leaf that cannot forward.
func (t *Table) UpdateFromHeader(hops []proto.NodeID) {
	n := len(hops)
	if n < 3 {
		return
	}
	for i := 1; i+2 < n; i++ {
		t.CheckAndAddEdge(hops[i], hops[i+1])
		t.CheckAndAddEdge(hops[i+1], hops[i])
	}
	t.CheckAndAddEdge(hops[1], hops[0])
	t.CheckAndAddEdge(hops[n-2], hops[n-1])
}

// RoutingHeaderWithHint computes a header to reach dest, preferring a fresh
// shortest path. If none is known yet, it falls back to learning the
// topology from the header the current request/response arrived on and
// replying along that header's reversal — the same fallback the original
// implementation uses when no route has been computed yet.
func (t *Table) RoutingHeaderWithHint(received proto.RoutingHeader, dest proto.NodeID) proto.RoutingHeader {
	if path, ok := t.ShortestPath(t.cfg.Self, dest); ok {
		return proto.HeaderFromPath(path)
	}
	t.UpdateFromHeader(received.Hops)
	return received.Reversed()
}

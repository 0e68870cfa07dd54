// Package routing implements the directed, ETX-weighted routing table
// described in §4.3: a live model of the mesh built from flood traces and
// received source-routing headers, with per-node packet-delivery-ratio
// (PDR) tracking and an A*-based shortest-path query.
//
// Grounded in original_source/src/servers/routing/mod.rs (RoutingTable,
// PdrEntry, PdrEstimator, update_network_from_flood/header,
// get_routing_hdr_with_hint), re-expressed as a small adjacency-map graph
// in the idiom the reference Go codebase uses for its own stateful,
// Config-driven types (router.Config, ack.TrackerConfig).
package routing

import (
	"log/slog"
	"math"

	"github.com/dronemesh/relaynode/core/proto"
)

const (
	// InitialPDR is the packet-delivery-ratio assumed for a node the
	// first time it is added to the graph.
	InitialPDR = 0.5
	// InitialETX is 1/InitialPDR, applied to every freshly added edge.
	InitialETX = 1.0 / InitialPDR
	// Epsilon is the PDR floor below which ETX is treated as +Inf.
	Epsilon = 1e-3
	// DefaultWindowSize is the number of ack/nack observations collected
	// before a node's PDR estimate is refreshed.
	DefaultWindowSize = 12
	// DefaultAlpha is the EWMA smoothing factor for the default estimator.
	DefaultAlpha = 0.35
)

// Estimator computes a new PDR estimate from the previous estimate and the
// ack/nack counts collected over one window.
type Estimator func(old float64, acks, nacks uint32) float64

// EWMA returns an Estimator implementing exponentially weighted moving
// average with the given smoothing factor alpha, per §4.3's default:
// pdr_new = alpha*(acks/(acks+nacks)) + (1-alpha)*pdr_old.
func EWMA(alpha float64) Estimator {
	return func(old float64, acks, nacks uint32) float64 {
		total := acks + nacks
		if total == 0 {
			return old
		}
		sample := float64(acks) / float64(total)
		return alpha*sample + (1-alpha)*old
	}
}

type pdrEntry struct {
	oldPDR float64
	acks   uint32
	nacks  uint32
}

// Config configures a Table.
type Config struct {
	// Self is this node's own identity, used to orient edges learned from
	// flood traces and received headers (§4.3).
	Self proto.NodeID

	// WindowSize is the number of ack/nack observations collected before
	// a PDR re-estimate. Default: DefaultWindowSize.
	WindowSize uint32

	// Estimator computes the new PDR at each window boundary.
	// Default: EWMA(DefaultAlpha).
	Estimator Estimator

	// Logger for routing events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Table is a directed, ETX-weighted graph of reachable nodes plus a
// per-node PDR table, maintained per §4.3's invariants.
type Table struct {
	cfg  Config
	log  *slog.Logger
	adj  map[proto.NodeID]map[proto.NodeID]float64
	pdr  map[proto.NodeID]*pdrEntry
}

// New creates a Table with the given configuration.
func New(cfg Config) *Table {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Estimator == nil {
		cfg.Estimator = EWMA(DefaultAlpha)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		cfg: cfg,
		log: logger.WithGroup("routing"),
		adj: make(map[proto.NodeID]map[proto.NodeID]float64),
		pdr: make(map[proto.NodeID]*pdrEntry),
	}
}

func (t *Table) ensurePDR(id proto.NodeID) {
	if _, ok := t.pdr[id]; !ok {
		t.pdr[id] = &pdrEntry{oldPDR: InitialPDR}
	}
}

func (t *Table) ensureNode(id proto.NodeID) {
	if _, ok := t.adj[id]; !ok {
		t.adj[id] = make(map[proto.NodeID]float64)
	}
	t.ensurePDR(id)
}

// ContainsEdge reports whether the directed edge from->to already exists.
func (t *Table) ContainsEdge(from, to proto.NodeID) bool {
	nbrs, ok := t.adj[from]
	if !ok {
		return false
	}
	_, ok = nbrs[to]
	return ok
}

// CheckAndAddEdge adds the directed edge from->to with the initial ETX
// weight if it is not already present, ensuring PDR entries exist for both
// endpoints. Idempotent: a second call with the same arguments is a no-op
// and returns false.
func (t *Table) CheckAndAddEdge(from, to proto.NodeID) bool {
	t.ensureNode(from)
	t.ensureNode(to)
	if t.ContainsEdge(from, to) {
		return false
	}
	t.adj[from][to] = InitialETX
	return true
}

// UpdatePDR records one ack (acked=true) or nack (acked=false) observation
// against id. Once the window fills, a new PDR is computed via the
// configured estimator and every outgoing edge from id has its ETX updated
// uniformly, per §4.3.
func (t *Table) UpdatePDR(id proto.NodeID, acked bool) bool {
	entry, ok := t.pdr[id]
	if !ok {
		return false
	}
	if acked {
		entry.acks++
	} else {
		entry.nacks++
	}

	if entry.acks+entry.nacks < t.cfg.WindowSize {
		return true
	}

	entry.oldPDR = t.cfg.Estimator(entry.oldPDR, entry.acks, entry.nacks)
	entry.acks = 0
	entry.nacks = 0

	etx := math.Inf(1)
	if entry.oldPDR >= Epsilon {
		etx = 1 / entry.oldPDR
	}
	for nbr := range t.adj[id] {
		t.adj[id][nbr] = etx
	}
	t.log.Debug("pdr window closed", "node", id, "pdr", entry.oldPDR, "etx", etx)
	return true
}

// PDR returns the current PDR estimate for id, or (0, false) if unknown.
func (t *Table) PDR(id proto.NodeID) (float64, bool) {
	e, ok := t.pdr[id]
	if !ok {
		return 0, false
	}
	return e.oldPDR, true
}

// RemoveNode deletes id's vertex, every incident edge, and its PDR entry.
// Returns true if anything was removed.
func (t *Table) RemoveNode(id proto.NodeID) bool {
	_, hadVertex := t.adj[id]
	_, hadPDR := t.pdr[id]
	if !hadVertex && !hadPDR {
		return false
	}
	delete(t.adj, id)
	delete(t.pdr, id)
	for _, nbrs := range t.adj {
		delete(nbrs, id)
	}
	return true
}

// HasNode reports whether id is currently a vertex in the graph.
func (t *Table) HasNode(id proto.NodeID) bool {
	_, ok := t.adj[id]
	return ok
}

// Edge is one directed, ETX-weighted edge in a Snapshot.
type Edge struct {
	From proto.NodeID
	To   proto.NodeID
	ETX  float64
}

// Snapshot returns every node currently in the graph and every directed
// edge with its current ETX weight, in no particular order. Intended for
// read-only external consumption (e.g. a topology dashboard); it does not
// observe or mutate live lookups.
func (t *Table) Snapshot() (nodes []proto.NodeID, edges []Edge) {
	for id := range t.adj {
		nodes = append(nodes, id)
	}
	for from, nbrs := range t.adj {
		for to, etx := range nbrs {
			edges = append(edges, Edge{From: from, To: to, ETX: etx})
		}
	}
	return nodes, edges
}

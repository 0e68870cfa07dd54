// Package proto defines the wire-visible data model shared by every
// component of the mesh engine: node identifiers, source-routing headers,
// fragments, and the tagged-union packet envelope described in §6 of the
// specification this engine implements.
//
// Everything here is a plain value type with no I/O and no goroutines —
// it is imported by nearly every other core package, mirroring how the
// reference codebase's core/codec package underlies router, dedupe, and
// multipart alike.
package proto

import "fmt"

// NodeID is an 8-bit node identifier, unique per simulated mesh node.
type NodeID uint8

// NodeKind classifies a node recorded in a flood trace.
type NodeKind uint8

const (
	NodeDrone NodeKind = iota
	NodeClient
	NodeServer
)

func (k NodeKind) String() string {
	switch k {
	case NodeDrone:
		return "Drone"
	case NodeClient:
		return "Client"
	case NodeServer:
		return "Server"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// FSIZE is the fixed payload size of a single fragment, per §3.
const FSIZE = 128

// RoutingHeader is an ordered source-routing path plus a hop index pointing
// at the next node that should receive the packet.
type RoutingHeader struct {
	Hops     []NodeID
	HopIndex int
}

// Len returns the number of hops in the header.
func (h RoutingHeader) Len() int { return len(h.Hops) }

// CurrentHop returns the node the header says should currently be holding
// the packet (the hop at HopIndex), or false if out of range.
func (h RoutingHeader) CurrentHop() (NodeID, bool) {
	if h.HopIndex < 0 || h.HopIndex >= len(h.Hops) {
		return 0, false
	}
	return h.Hops[h.HopIndex], true
}

// NextHop returns the hop immediately after HopIndex, or false if there is
// none.
func (h RoutingHeader) NextHop() (NodeID, bool) {
	i := h.HopIndex + 1
	if i < 0 || i >= len(h.Hops) {
		return 0, false
	}
	return h.Hops[i], true
}

// Advance returns a copy of the header with HopIndex moved one step
// forward, along with the node now at that position. Every hop along a
// routing header's path uses this before handing a packet to the next
// node's channel, so the HopIndex carried over the wire always identifies
// whoever currently holds the packet.
func (h RoutingHeader) Advance() (RoutingHeader, NodeID, bool) {
	next := h
	next.HopIndex++
	hop, ok := next.CurrentHop()
	return next, hop, ok
}

// Reversed returns a new header walking the same node sequence backwards,
// with HopIndex reset to point at its new first hop. Used when a node must
// reply along a header it received but cannot compute a fresh path for.
func (h RoutingHeader) Reversed() RoutingHeader {
	n := len(h.Hops)
	rev := make([]NodeID, n)
	for i, hop := range h.Hops {
		rev[n-1-i] = hop
	}
	return RoutingHeader{Hops: rev, HopIndex: 0}
}

// HeaderFromPath builds a RoutingHeader from a plain hop sequence (as
// returned by routing.Table.ShortestPath), with the hop index at the start.
func HeaderFromPath(path []NodeID) RoutingHeader {
	return RoutingHeader{Hops: path, HopIndex: 0}
}

// Fragment is a fixed-size chunk of a larger, already-compressed payload.
type Fragment struct {
	Index  uint64
	Total  uint64
	Length uint8 // real (unpadded) length of Data
	Data   [FSIZE]byte
}

// NackKind enumerates the reasons a drone can report delivery failure.
type NackKind uint8

const (
	NackDropped NackKind = iota
	NackErrorInRouting
	NackDestinationIsDrone
	NackUnexpectedRecipient
)

func (k NackKind) String() string {
	switch k {
	case NackDropped:
		return "Dropped"
	case NackErrorInRouting:
		return "ErrorInRouting"
	case NackDestinationIsDrone:
		return "DestinationIsDrone"
	case NackUnexpectedRecipient:
		return "UnexpectedRecipient"
	default:
		return fmt.Sprintf("NackKind(%d)", uint8(k))
	}
}

// Nack carries a negative acknowledgement for one fragment. Node is only
// meaningful when Kind is NackErrorInRouting or NackUnexpectedRecipient.
type Nack struct {
	FragmentIndex uint64
	Kind          NackKind
	Node          NodeID
}

// Ack positively acknowledges receipt of one fragment.
type Ack struct {
	FragmentIndex uint64
}

// TraceHop is one (node, kind) pair recorded along a flood's path.
type TraceHop struct {
	Node NodeID
	Kind NodeKind
}

// FloodRequest is broadcast by a flood initiator and re-broadcast by every
// drone that has not yet seen it, accumulating a path trace as it goes.
type FloodRequest struct {
	FloodID   uint64
	Initiator NodeID
	Trace     []TraceHop
}

// FloodResponse unwinds a FloodRequest back to its initiator along the
// reversed trace, carrying the complete trace that was accumulated.
type FloodResponse struct {
	FloodID uint64
	Trace   []TraceHop
}

// PayloadKind tags which variant of the payload union a Packet carries.
type PayloadKind uint8

const (
	PayloadFragment PayloadKind = iota
	PayloadAck
	PayloadNack
	PayloadFloodRequest
	PayloadFloodResponse
)

// Packet is the packet envelope described in §3/§6: a routing header, a
// 64-bit session id, and exactly one payload variant.
type Packet struct {
	Header    RoutingHeader
	SessionID uint64
	Kind      PayloadKind

	Fragment      Fragment
	Ack           Ack
	Nack          Nack
	FloodRequest  FloodRequest
	FloodResponse FloodResponse
}

// Clone returns a deep copy of the packet, safe to mutate independently of
// the original (e.g. before appending to a trace for forwarding).
func (p *Packet) Clone() *Packet {
	c := *p
	c.Header.Hops = append([]NodeID(nil), p.Header.Hops...)
	c.FloodRequest.Trace = append([]TraceHop(nil), p.FloodRequest.Trace...)
	c.FloodResponse.Trace = append([]TraceHop(nil), p.FloodResponse.Trace...)
	return &c
}

// Sender returns the originating node of the packet, i.e. the first hop
// recorded in its routing header.
func (p *Packet) Sender() (NodeID, bool) {
	if len(p.Header.Hops) == 0 {
		return 0, false
	}
	return p.Header.Hops[0], true
}

package node

import "github.com/dronemesh/relaynode/core/proto"

// CommandKind tags which supervisor command a Command carries.
type CommandKind uint8

const (
	CmdAddSender CommandKind = iota
	CmdRemoveSender
	CmdShortcut
)

// Command is a controller-to-engine instruction, per §4.10. Kind selects
// which of the fields below are meaningful: Node and Channel for
// AddSender, Node for RemoveSender, Packet for Shortcut.
type Command struct {
	Kind    CommandKind
	Node    proto.NodeID
	Channel chan<- *proto.Packet
	Packet  *proto.Packet
}

// AddSender builds the command installing a channel for id and marking the
// graph dirty so a flood discovers its reachability.
func AddSender(id proto.NodeID, ch chan<- *proto.Packet) Command {
	return Command{Kind: CmdAddSender, Node: id, Channel: ch}
}

// RemoveSender builds the command dropping a channel and its node from the
// routing table.
func RemoveSender(id proto.NodeID) Command {
	return Command{Kind: CmdRemoveSender, Node: id}
}

// Shortcut builds the command handing pkt to the inbound dispatcher exactly
// as if it had arrived on the normal packet channel, for packets the
// controller could not route itself.
func Shortcut(pkt *proto.Packet) Command {
	return Command{Kind: CmdShortcut, Packet: pkt}
}

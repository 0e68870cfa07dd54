package neighbor

import (
	"testing"

	"github.com/dronemesh/relaynode/core/proto"
)

func TestSendUnknownIdReturnsFalse(t *testing.T) {
	tbl := New()
	if tbl.Send(1, &proto.Packet{}) {
		t.Error("Send to an id with no installed channel should return false")
	}
}

func TestSendDeliversToInstalledChannel(t *testing.T) {
	tbl := New()
	ch := make(chan *proto.Packet, 1)
	tbl.Add(2, ch)

	if !tbl.Send(2, &proto.Packet{SessionID: 7}) {
		t.Fatal("Send should have succeeded")
	}
	select {
	case pkt := <-ch:
		if pkt.SessionID != 7 {
			t.Errorf("SessionID = %d, want 7", pkt.SessionID)
		}
	default:
		t.Error("expected packet to have been delivered")
	}
}

func TestSendFullChannelReturnsFalseWithoutBlocking(t *testing.T) {
	tbl := New()
	ch := make(chan *proto.Packet, 1)
	tbl.Add(3, ch)
	ch <- &proto.Packet{} // fill the buffer

	done := make(chan bool, 1)
	go func() { done <- tbl.Send(3, &proto.Packet{}) }()

	if ok := <-done; ok {
		t.Error("Send on a full channel should report false, not block and eventually succeed")
	}
}

func TestBroadcastSkipsExceptAndFullChannels(t *testing.T) {
	tbl := New()
	skip := make(chan *proto.Packet, 1)
	full := make(chan *proto.Packet, 1)
	open := make(chan *proto.Packet, 1)
	tbl.Add(1, skip)
	tbl.Add(2, full)
	tbl.Add(3, open)
	full <- &proto.Packet{} // fill the buffer

	sent := tbl.Broadcast(1, &proto.Packet{})

	if sent != 1 {
		t.Errorf("Broadcast reported %d sends, want 1 (only the open channel)", sent)
	}
	select {
	case <-skip:
		t.Error("except id should never receive a broadcast")
	default:
	}
	select {
	case <-open:
	default:
		t.Error("open channel should have received the broadcast")
	}
}

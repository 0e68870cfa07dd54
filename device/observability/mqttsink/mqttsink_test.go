package mqttsink

import (
	"testing"

	"github.com/dronemesh/relaynode/core/events"
	"github.com/dronemesh/relaynode/core/proto"
)

func TestNewDefaults(t *testing.T) {
	s := New(Config{Broker: "tcp://localhost:1883"})

	if s.cfg.Topic != DefaultTopic {
		t.Errorf("expected default topic %q, got %q", DefaultTopic, s.cfg.Topic)
	}
	if s.cfg.QueueSize != DefaultQueueSize {
		t.Errorf("expected default queue size %d, got %d", DefaultQueueSize, s.cfg.QueueSize)
	}
	if s.log == nil {
		t.Error("expected logger to be set")
	}
}

func TestStartMissingBroker(t *testing.T) {
	s := New(Config{})
	if err := s.Start(); err == nil {
		t.Fatal("expected error with empty broker")
	}
}

func TestEmitBeforeStartIsDropped(t *testing.T) {
	s := New(Config{Broker: "tcp://localhost:1883"})
	// Emit must never panic or block when called before Start connects.
	s.Emit(events.Event{Kind: events.PacketSent, Packet: &proto.Packet{SessionID: 1}})
}

package parser

import (
	"bytes"
	"reflect"
	"testing"
)

func TestEncodeDecodeSimpleEvent(t *testing.T) {
	id := int64(1)
	pkt := Packet{
		Type:      Event,
		Namespace: DefaultNamespace,
		Data:      []any{"hi"},
		ID:        &id,
	}

	header, attachments, err := EncodeWithAttachments(pkt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attachments) != 0 {
		t.Fatalf("expected no attachments, got %d", len(attachments))
	}
	if header != `21["hi"]` {
		t.Fatalf("unexpected header: %q", header)
	}

	dec := NewDecoder()
	decoded, err := dec.AddText(header)
	if err != nil || decoded == nil {
		t.Fatalf("unexpected decode result: %+v err=%v", decoded, err)
	}
	if decoded.Type != Event || *decoded.ID != 1 {
		t.Fatalf("unexpected packet: %+v", decoded)
	}
}

func TestEncodeDecodeNamespacedEvent(t *testing.T) {
	pkt := Packet{Type: Event, Namespace: "/chat", Data: []any{"msg", "hi"}}
	header, _, err := EncodeWithAttachments(pkt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != `2/chat,["msg","hi"]` {
		t.Fatalf("unexpected header: %q", header)
	}

	dec := NewDecoder()
	decoded, err := dec.AddText(header)
	if err != nil || decoded == nil {
		t.Fatalf("unexpected decode result: %+v err=%v", decoded, err)
	}
	if decoded.Namespace != "/chat" {
		t.Fatalf("expected namespace /chat, got %q", decoded.Namespace)
	}
}

func TestBinaryEventRoundTrip(t *testing.T) {
	// 51-["chat",{"_placeholder":true,"num":0}] followed by one binary
	// attachment frame.
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	pkt := Packet{Type: Event, Namespace: DefaultNamespace, Data: []any{"chat", payload}}

	header, attachments, err := EncodeWithAttachments(pkt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != `51-["chat",{"_placeholder":true,"num":0}]` {
		t.Fatalf("unexpected header: %q", header)
	}
	if len(attachments) != 1 || !bytes.Equal(attachments[0], payload) {
		t.Fatalf("unexpected attachments: %v", attachments)
	}

	dec := NewDecoder()
	decoded, err := dec.AddText(header)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected decoder to wait for the attachment, got %+v", decoded)
	}

	decoded, err = dec.AddBinary(payload)
	if err != nil || decoded == nil {
		t.Fatalf("unexpected decode result: %+v err=%v", decoded, err)
	}
	if decoded.Type != Event {
		t.Fatalf("expected BinaryEvent to downgrade to Event, got %v", decoded.Type)
	}
	want := []any{"chat", payload}
	if !reflect.DeepEqual(decoded.Data, want) {
		t.Fatalf("unexpected reconstructed data: %+v", decoded.Data)
	}
}

func TestAckPacket(t *testing.T) {
	id := int64(1)
	header := `31["hi"]`
	dec := NewDecoder()
	decoded, err := dec.AddText(header)
	if err != nil || decoded == nil {
		t.Fatalf("unexpected decode result: %+v err=%v", decoded, err)
	}
	if decoded.Type != Ack || *decoded.ID != id {
		t.Fatalf("unexpected packet: %+v", decoded)
	}
}

func TestMidAccumulationTextFrameDropsAccumulator(t *testing.T) {
	dec := NewDecoder()
	dropped := 0
	dec.OnAccumulatorDrop(func() { dropped++ })

	if _, err := dec.AddText(`51-["chat",{"_placeholder":true,"num":0}]`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A text header arrives before the attachment does.
	decoded, err := dec.AddText(`2["other"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("expected accumulator drop to fire once, got %d", dropped)
	}
	if decoded == nil || decoded.Type != Event {
		t.Fatalf("expected the new header to decode normally, got %+v", decoded)
	}
}

func TestBadJSONPayloadBecomesNil(t *testing.T) {
	dec := NewDecoder()
	decoded, err := dec.AddText(`2not-json`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Data != nil {
		t.Fatalf("expected nil data for unparsable payload, got %v", decoded.Data)
	}
}

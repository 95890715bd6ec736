// Package packet implements the Engine.IO v4 packet codec: packet types,
// the open-packet payload, the HTTP long-polling wire format, the WebSocket
// wire format, and maxPayload-bounded payload assembly.
package packet

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Type is one of the seven Engine.IO packet types.
type Type byte

const (
	Open    Type = '0'
	Close   Type = '1'
	Ping    Type = '2'
	Pong    Type = '3'
	Message Type = '4'
	Upgrade Type = '5'
	Noop    Type = '6'
)

func (t Type) Valid() bool {
	switch t {
	case Open, Close, Ping, Pong, Message, Upgrade, Noop:
		return true
	default:
		return false
	}
}

// Separator is the record separator (U+001E) joining HTTP long-poll segments.
const Separator = byte(0x1e)

// Packet is a single Engine.IO packet: text or binary data tagged with a type.
type Packet struct {
	Type   Type
	Data   []byte
	Binary bool
}

// OpenPayload is the JSON body of an open (type 0) packet.
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// EncodeOpenPacket builds the "0"+JSON open packet body.
func EncodeOpenPacket(payload OpenPayload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("packet: encode open payload: %w", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(Open))
	out = append(out, body...)
	return out, nil
}

// EncodeTextPacket builds a text segment "<type><data>".
func EncodeTextPacket(t Type, data string) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, byte(t))
	out = append(out, data...)
	return out
}

// EncodeHTTPBinaryMessage builds the long-poll binary segment "b"+base64(data).
func EncodeHTTPBinaryMessage(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	out := make([]byte, 0, len(encoded)+1)
	out = append(out, 'b')
	out = append(out, encoded...)
	return out
}

// EncodeHTTPSegment encodes one packet the way it appears inside an HTTP
// long-polling payload: binary message packets become "b"+base64, everything
// else becomes "<type><text>".
func EncodeHTTPSegment(p Packet) []byte {
	if p.Type == Message && p.Binary {
		return EncodeHTTPBinaryMessage(p.Data)
	}
	return EncodeTextPacket(p.Type, string(p.Data))
}

// EncodeHTTPPayload joins segments with Separator.
func EncodeHTTPPayload(packets []Packet) []byte {
	var buf bytes.Buffer
	for i, p := range packets {
		if i > 0 {
			buf.WriteByte(Separator)
		}
		buf.Write(EncodeHTTPSegment(p))
	}
	return buf.Bytes()
}

// DecodeHTTPPayload splits an inbound long-polling POST body on Separator
// and decodes each non-empty segment.
func DecodeHTTPPayload(body []byte) ([]Packet, error) {
	if len(body) == 0 {
		return nil, nil
	}
	segments := bytes.Split(body, []byte{Separator})
	packets := make([]Packet, 0, len(segments))
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if seg[0] == 'b' {
			data, err := base64.StdEncoding.DecodeString(string(seg[1:]))
			if err != nil {
				return nil, fmt.Errorf("packet: decode binary segment: %w", err)
			}
			packets = append(packets, Packet{Type: Message, Data: data, Binary: true})
			continue
		}
		t := Type(seg[0])
		if !t.Valid() {
			return nil, fmt.Errorf("packet: unknown packet type %q", seg[0])
		}
		packets = append(packets, Packet{Type: t, Data: seg[1:]})
	}
	return packets, nil
}

// DecodeWSTextFrame decodes a WebSocket text frame: "<type><text>".
func DecodeWSTextFrame(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, fmt.Errorf("packet: empty websocket text frame")
	}
	t := Type(frame[0])
	if !t.Valid() {
		return Packet{}, fmt.Errorf("packet: unknown packet type %q", frame[0])
	}
	return Packet{Type: t, Data: frame[1:]}, nil
}

// DecodeWSBinaryFrame decodes a WebSocket binary frame: the first byte (ASCII
// digit) is the packet type, the rest is the raw binary payload.
func DecodeWSBinaryFrame(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, fmt.Errorf("packet: empty websocket binary frame")
	}
	t := Type(frame[0])
	if !t.Valid() {
		return Packet{}, fmt.Errorf("packet: unknown packet type %q", frame[0])
	}
	return Packet{Type: t, Data: frame[1:], Binary: true}, nil
}

// EncodeWSTextFrame builds a WebSocket text frame body "<type><text>".
func EncodeWSTextFrame(t Type, data string) []byte {
	return EncodeTextPacket(t, data)
}

// EncodeWSBinaryFrame builds a WebSocket binary frame body: type byte
// followed by the raw payload, sent verbatim (no base64).
func EncodeWSBinaryFrame(t Type, data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, byte(t))
	out = append(out, data...)
	return out
}

package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// pendingBinary accumulates attachments for one in-flight BinaryEvent/
// BinaryAck header until all of them have arrived.
type pendingBinary struct {
	packet  Packet
	want    int
	buffers [][]byte
}

// Decoder reassembles one connection's stream of Engine.IO messages (text
// headers interleaved with binary attachments) into complete Socket.IO
// packets. One Decoder is owned per Engine.IO session; it is not safe for
// concurrent use (matching the single-threaded-per-session scheduling
// model this module follows).
type Decoder struct {
	pending *pendingBinary

	// onAccumulatorDrop is invoked whenever a text frame arrives while a
	// binary accumulation is in progress. The accumulator is dropped and
	// the connection stays open; callers surface the drop as a metric.
	onAccumulatorDrop func()
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// OnAccumulatorDrop registers a callback fired each time a mid-accumulation
// text frame forces a dropped binary packet.
func (d *Decoder) OnAccumulatorDrop(fn func()) {
	d.onAccumulatorDrop = fn
}

// AddText feeds one Engine.IO text message (a Socket.IO header) into the
// decoder. If the header carries attachments, nil is returned and the
// decoder waits for that many AddBinary calls before yielding the packet.
func (d *Decoder) AddText(header string) (*Packet, error) {
	if d.pending != nil {
		d.dropAccumulator()
	}

	pkt, err := decodeHeader(header)
	if err != nil {
		return nil, err
	}

	if pkt.Attachments == 0 {
		return &pkt, nil
	}

	d.pending = &pendingBinary{
		packet:  pkt,
		want:    pkt.Attachments,
		buffers: make([][]byte, 0, pkt.Attachments),
	}
	return nil, nil
}

// AddBinary feeds one Engine.IO binary message (an attachment) into the
// decoder. Returns the completed packet once the expected attachment count
// has been reached, nil otherwise.
func (d *Decoder) AddBinary(data []byte) (*Packet, error) {
	if d.pending == nil {
		return nil, fmt.Errorf("socketio/parser: unexpected binary attachment with no pending header")
	}

	d.pending.buffers = append(d.pending.buffers, data)
	if len(d.pending.buffers) < d.pending.want {
		return nil, nil
	}

	pkt := ReconstructPacket(d.pending.packet, d.pending.buffers)
	d.pending = nil
	return &pkt, nil
}

func (d *Decoder) dropAccumulator() {
	d.pending = nil
	if d.onAccumulatorDrop != nil {
		d.onAccumulatorDrop()
	}
}

// decodeHeader parses the Socket.IO text header grammar:
//
//	<type>[<N>-][<namespace>,][<id>][<json>]
func decodeHeader(header string) (Packet, error) {
	if len(header) == 0 {
		return Packet{}, fmt.Errorf("socketio/parser: empty header")
	}

	cursor := 0
	pkt := Packet{Namespace: DefaultNamespace}

	t, err := parsePacketType(header, &cursor)
	if err != nil {
		return Packet{}, err
	}
	pkt.Type = t

	pkt.Attachments = parseAttachments(header, &cursor, t)
	pkt.Namespace = parseNamespace(header, &cursor)
	pkt.ID = parsePacketID(header, &cursor)

	data, err := parsePayload(header, cursor)
	if err != nil {
		return Packet{}, err
	}
	pkt.Data = data

	return pkt, nil
}

func parsePacketType(header string, cursor *int) (Type, error) {
	digit := header[*cursor]
	if digit < '0' || digit > '6' {
		return 0, fmt.Errorf("socketio/parser: unknown packet type %q", digit)
	}
	*cursor++
	return Type(digit - '0'), nil
}

func parseAttachments(header string, cursor *int, t Type) int {
	if t != BinaryEvent && t != BinaryAck {
		return 0
	}
	start := *cursor
	for *cursor < len(header) && header[*cursor] >= '0' && header[*cursor] <= '9' {
		*cursor++
	}
	if *cursor == start || *cursor >= len(header) || header[*cursor] != '-' {
		*cursor = start
		return 0
	}
	n, _ := strconv.Atoi(header[start:*cursor])
	*cursor++ // consume '-'
	return n
}

func parseNamespace(header string, cursor *int) string {
	if *cursor >= len(header) || header[*cursor] != '/' {
		return DefaultNamespace
	}
	start := *cursor
	for *cursor < len(header) && header[*cursor] != ',' {
		*cursor++
	}
	ns := header[start:*cursor]
	if *cursor < len(header) {
		*cursor++ // consume ','
	}
	return ns
}

func parsePacketID(header string, cursor *int) *int64 {
	start := *cursor
	for *cursor < len(header) && header[*cursor] >= '0' && header[*cursor] <= '9' {
		*cursor++
	}
	if *cursor == start {
		return nil
	}
	id, err := strconv.ParseInt(header[start:*cursor], 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func parsePayload(header string, cursor int) (any, error) {
	if cursor >= len(header) {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal([]byte(header[cursor:]), &data); err != nil {
		// An unparsable payload becomes null rather than rejecting the
		// whole packet.
		return nil, nil
	}
	return data, nil
}

package parser

import "sort"

// DeconstructPacket walks pkt.Data depth-first, replacing every []byte with
// a Placeholder and collecting the extracted bytes, in walk order, into the
// returned attachments slice. If any attachments were found, it upgrades
// Event->BinaryEvent / Ack->BinaryAck and sets pkt.Attachments.
//
// Object values are walked in sorted key order, which both makes the
// attachment numbering deterministic (Go maps have no iteration order) and
// matches the key order encoding/json later marshals the header with, so
// placeholder indices appear in the serialized header in ascending order.
func DeconstructPacket(pkt Packet) (Packet, [][]byte) {
	var attachments [][]byte
	pkt.Data = deconstructValue(pkt.Data, &attachments)
	pkt.Attachments = len(attachments)

	if len(attachments) > 0 {
		switch pkt.Type {
		case Event:
			pkt.Type = BinaryEvent
		case Ack:
			pkt.Type = BinaryAck
		}
	}

	return pkt, attachments
}

func deconstructValue(v any, attachments *[][]byte) any {
	switch typed := v.(type) {
	case []byte:
		idx := int64(len(*attachments))
		*attachments = append(*attachments, typed)
		return Placeholder{Placeholder: true, Num: idx}
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deconstructValue(item, attachments)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(typed))
		for _, k := range keys {
			out[k] = deconstructValue(typed[k], attachments)
		}
		return out
	default:
		return v
	}
}

// ReconstructPacket replaces every placeholder map/struct found in pkt.Data
// with the corresponding entry from attachments, and downgrades
// BinaryEvent->Event / BinaryAck->Ack.
func ReconstructPacket(pkt Packet, attachments [][]byte) Packet {
	pkt.Data = reconstructValue(pkt.Data, attachments)
	pkt.Attachments = 0

	switch pkt.Type {
	case BinaryEvent:
		pkt.Type = Event
	case BinaryAck:
		pkt.Type = Ack
	}

	return pkt
}

func reconstructValue(v any, attachments [][]byte) any {
	switch typed := v.(type) {
	case map[string]any:
		if num, ok := placeholderNum(typed); ok {
			if int(num) >= 0 && int(num) < len(attachments) {
				return attachments[num]
			}
			return nil
		}
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = reconstructValue(item, attachments)
		}
		return out
	case Placeholder:
		if !typed.Placeholder {
			return v
		}
		if typed.Num >= 0 && typed.Num < int64(len(attachments)) {
			return attachments[typed.Num]
		}
		return nil
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = reconstructValue(item, attachments)
		}
		return out
	default:
		return v
	}
}

// placeholderNum recognizes the decoded-JSON shape {"_placeholder": true,
// "num": N} (after encoding/json.Unmarshal into map[string]any, numbers
// decode as float64).
func placeholderNum(m map[string]any) (int64, bool) {
	if len(m) != 2 {
		return 0, false
	}
	flag, ok := m["_placeholder"].(bool)
	if !ok || !flag {
		return 0, false
	}
	switch n := m["num"].(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Encode builds the Socket.IO header string for pkt. It does not extract
// binary attachments; EncodeWithAttachments returns those alongside the
// header, to be sent immediately after it as separate Engine.IO binary
// messages.
//
// Callers are expected to have already run DeconstructPacket on pkt so that
// pkt.Type has been upgraded to BinaryEvent/BinaryAck and pkt.Data holds
// Placeholder values in place of raw bytes.
func Encode(pkt Packet) (header string, err error) {
	var b strings.Builder
	b.WriteByte(typeByte(pkt.Type))

	if (pkt.Type == BinaryEvent || pkt.Type == BinaryAck) && pkt.Attachments > 0 {
		b.WriteString(strconv.Itoa(pkt.Attachments))
		b.WriteByte('-')
	}

	if pkt.Namespace != "" && pkt.Namespace != DefaultNamespace {
		b.WriteString(pkt.Namespace)
		b.WriteByte(',')
	}

	if pkt.ID != nil {
		b.WriteString(strconv.FormatInt(*pkt.ID, 10))
	}

	if pkt.Data != nil {
		payload, jsonErr := json.Marshal(pkt.Data)
		if jsonErr != nil {
			return "", jsonErr
		}
		b.Write(payload)
	}

	return b.String(), nil
}

// EncodeWithAttachments runs DeconstructPacket then Encode, returning the
// header string and the raw attachment buffers in walk order.
func EncodeWithAttachments(pkt Packet) (header string, attachments [][]byte, err error) {
	pkt, attachments = DeconstructPacket(pkt)
	header, err = Encode(pkt)
	return header, attachments, err
}

func typeByte(t Type) byte {
	return byte('0' + int(t))
}

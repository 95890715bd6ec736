package packet

// DrainForPayload takes segments from the front of pending (FIFO order) and
// appends them to an HTTP long-polling payload, stopping before maxPayload
// would be exceeded. It returns the encoded payload bytes and the number of
// segments consumed; pending itself is not modified, and the caller is
// responsible for removing exactly that many items from the front of its
// queue.
//
// If the very first pending packet's encoded segment alone exceeds
// maxPayload, nothing is consumed and the returned payload is empty — the
// segment stays at the head of the queue for the next drain attempt.
func DrainForPayload(pending []Packet, maxPayload int) (payload []byte, consumed int) {
	var buf []byte
	for i, p := range pending {
		seg := EncodeHTTPSegment(p)

		extra := len(seg)
		if len(buf) > 0 {
			extra++ // separator
		}

		if len(buf)+extra > maxPayload {
			if i == 0 {
				return nil, 0
			}
			break
		}

		if len(buf) > 0 {
			buf = append(buf, Separator)
		}
		buf = append(buf, seg...)
		consumed = i + 1
	}
	return buf, consumed
}

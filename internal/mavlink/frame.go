package mavlink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	magicV1 = 0xFE

	// GCSSystemID is the source system id this side stamps on outgoing
	// frames, the conventional ground-station id.
	GCSSystemID uint8 = 255

	// GCSComponentID is the source component id for outgoing frames.
	GCSComponentID uint8 = 190
)

// ErrUnknownMessage marks a frame whose message id is outside the supported
// set. Readers skip these frames.
var ErrUnknownMessage = errors.New("unknown message")

// ErrBadChecksum marks a frame that failed CRC validation.
var ErrBadChecksum = errors.New("bad checksum")

// Frame is one decoded v1 frame: the sender identity plus the payload message.
type Frame struct {
	SystemID    uint8
	ComponentID uint8
	Message     Message
}

// encodeFrame renders a complete v1 frame. The checksum covers len through
// the last payload byte, then the message's CRC_EXTRA byte.
func encodeFrame(seq, sysID, compID uint8, msg Message) []byte {
	payload := msg.marshal()
	buf := make([]byte, 0, 8+len(payload))
	buf = append(buf, magicV1, byte(len(payload)), seq, sysID, compID, msg.ID())
	buf = append(buf, payload...)

	crc := newX25()
	crc.addBytes(buf[1:])
	crc.add(crcExtra[msg.ID()])
	sum := crc.sum()
	return append(buf, byte(sum&0xFF), byte(sum>>8))
}

// readFrame scans the stream for the next well-formed frame. Garbage bytes
// before a magic marker are discarded; frames with a bad checksum or unknown
// message id yield ErrBadChecksum / ErrUnknownMessage so the caller can skip
// and resync.
func readFrame(r *bufio.Reader) (Frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == magicV1 {
			break
		}
	}

	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	length := int(header[0])
	sysID, compID, msgID := header[2], header[3], header[4]

	body := make([]byte, length+2)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	payload := body[:length]
	wireSum := uint16(body[length]) | uint16(body[length+1])<<8

	extra, known := crcExtra[msgID]
	if !known {
		return Frame{}, fmt.Errorf("%w: id %d", ErrUnknownMessage, msgID)
	}

	crc := newX25()
	crc.addBytes(header)
	crc.addBytes(payload)
	crc.add(extra)
	if crc.sum() != wireSum {
		return Frame{}, fmt.Errorf("%w: message %d", ErrBadChecksum, msgID)
	}

	msg, err := unmarshalMessage(msgID, payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{SystemID: sysID, ComponentID: compID, Message: msg}, nil
}

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderLen is the size of the big-endian length prefix.
const HeaderLen = 4

var (
	ErrShortHeader     = errors.New("frame: short length header")
	ErrShortPayload    = errors.New("frame: short payload")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 1 << 20,
	}
}

// Encode prepends the 4-byte length of payload.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderLen], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf
}

func DecodeHeader(b []byte) (uint32, error) {
	if len(b) != HeaderLen {
		return 0, fmt.Errorf("frame: invalid header length: %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// Decode is the inverse of Encode for a buffer holding exactly one frame.
func Decode(b []byte) ([]byte, error) {
	if len(b) < HeaderLen {
		return nil, ErrShortHeader
	}
	n, err := DecodeHeader(b[:HeaderLen])
	if err != nil {
		return nil, err
	}
	body := b[HeaderLen:]
	if uint64(len(body)) < uint64(n) {
		return nil, ErrShortPayload
	}
	if uint64(len(body)) > uint64(n) {
		return nil, fmt.Errorf("frame: %d trailing bytes", uint64(len(body))-uint64(n))
	}
	out := make([]byte, n)
	copy(out, body)
	return out, nil
}

// WriteFrame writes header and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if uint64(len(payload)) > math.MaxUint32 || (limits.MaxPayloadBytes > 0 && uint64(len(payload)) > uint64(limits.MaxPayloadBytes)) {
		return ErrPayloadTooLarge
	}
	_, err := w.Write(Encode(payload))
	return err
}

func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	n, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if limits.MaxPayloadBytes > 0 && n > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, ErrShortPayload
			}
			return nil, err
		}
	}
	return payload, nil
}

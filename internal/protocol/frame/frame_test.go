package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("(syn)"),
		[]byte("(scene rsg/agent/nao/nao_hetero.rsg 1)"),
		bytes.Repeat([]byte{0xff, 0x00, '('}, 4096),
	}
	for _, p := range payloads {
		enc := Encode(p)
		n, err := DecodeHeader(enc[:HeaderLen])
		if err != nil {
			t.Fatalf("decode header: %v", err)
		}
		if int(n) != len(p) {
			t.Fatalf("length field got=%d want=%d", n, len(p))
		}
		out, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(out, p) {
			t.Fatalf("payload mismatch: got=%q want=%q", out, p)
		}
	}
}

func TestEncodeHeaderIsBigEndian(t *testing.T) {
	enc := Encode(make([]byte, 0x0102))
	if !bytes.Equal(enc[:4], []byte{0x00, 0x00, 0x01, 0x02}) {
		t.Fatalf("unexpected header bytes: %v", enc[:4])
	}
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("(init (unum 7) (teamname RoboIME))"), DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := WriteFrame(&buf, []byte("(syn)"), DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	first, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(first) != "(init (unum 7) (teamname RoboIME))" {
		t.Fatalf("unexpected first frame: %q", first)
	}
	second, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(second) != "(syn)" {
		t.Fatalf("unexpected second frame: %q", second)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader on empty stream, got %v", err)
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	enc := Encode([]byte("(See (B (pol 1 2 3)))"))
	_, err := ReadFrame(bytes.NewReader(enc[:len(enc)-3]), DefaultLimits())
	if !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestPayloadLimits(t *testing.T) {
	limits := Limits{MaxPayloadBytes: 8}
	if err := WriteFrame(&bytes.Buffer{}, make([]byte, 9), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on write, got %v", err)
	}
	_, err := ReadFrame(bytes.NewReader(Encode(make([]byte, 9))), limits)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on read, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc := append(Encode([]byte("(syn)")), 'x')
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected trailing byte error")
	}
}

package base

import (
	"bytes"
	"errors"
	"testing"
)

// TestEncodeFrame tests the length prefix
func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected []byte
	}{
		{"empty", []byte{}, []byte{0, 0, 0, 0}},
		{"short", []byte("9\x001\x00"), []byte{0, 0, 0, 4, '9', 0, '1', 0}},
		{"long", bytes.Repeat([]byte{'a'}, 300), append([]byte{0, 0, 1, 44}, bytes.Repeat([]byte{'a'}, 300)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeFrame(tt.payload); !bytes.Equal(got, tt.expected) {
				t.Errorf("EncodeFrame() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestTryExtractFrameEverySplit feeds a stream of frames split at every possible
// position and checks that the same payloads come out in order
func TestTryExtractFrameEverySplit(t *testing.T) {
	payloads := [][]byte{
		[]byte("17\x001001\x00"),
		{},
		[]byte("4\x002\x00-1\x002104\x00farm ok\x00"),
		bytes.Repeat([]byte("x\x00"), 100),
	}

	var stream []byte
	for _, p := range payloads {
		stream = append(stream, EncodeFrame(p)...)
	}

	for split := 0; split <= len(stream); split++ {
		var acc []byte
		var got [][]byte

		for _, chunk := range [][]byte{stream[:split], stream[split:]} {
			acc = append(acc, chunk...)
			for {
				frame, rest, ok, err := TryExtractFrame(acc, 1024)
				if err != nil {
					t.Fatalf("split %d: unexpected error: %v", split, err)
				}
				if !ok {
					break
				}
				got = append(got, append([]byte(nil), frame...))
				acc = rest
			}
		}

		if len(acc) != 0 {
			t.Fatalf("split %d: %d bytes left over", split, len(acc))
		}
		if len(got) != len(payloads) {
			t.Fatalf("split %d: got %d frames, want %d", split, len(got), len(payloads))
		}
		for i := range payloads {
			if !bytes.Equal(got[i], payloads[i]) {
				t.Errorf("split %d: frame %d = %q, want %q", split, i, got[i], payloads[i])
			}
		}
	}
}

// TestTryExtractFrameIncomplete tests that partial input is returned untouched
func TestTryExtractFrameIncomplete(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"nothing", nil},
		{"partial header", []byte{0, 0}},
		{"header only", []byte{0, 0, 0, 3}},
		{"partial payload", []byte{0, 0, 0, 3, 'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, rest, ok, err := TryExtractFrame(tt.buf, 1024)
			if err != nil || ok || frame != nil {
				t.Errorf("TryExtractFrame() = %q, %v, %v; want incomplete", frame, ok, err)
			}
			if !bytes.Equal(rest, tt.buf) {
				t.Errorf("rest = %v, want %v", rest, tt.buf)
			}
		})
	}
}

// TestTryExtractFrameTooLarge tests that an oversized header is rejected before the
// payload arrived
func TestTryExtractFrameTooLarge(t *testing.T) {
	_, _, ok, err := TryExtractFrame([]byte{0, 0, 4, 1}, 1024)
	if ok || !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("TryExtractFrame() = %v, %v; want ErrFrameTooLarge", ok, err)
	}

	// exactly the limit is allowed
	buf := EncodeFrame(bytes.Repeat([]byte{'a'}, 16))
	if _, _, ok, err := TryExtractFrame(buf, 16); !ok || err != nil {
		t.Errorf("TryExtractFrame() at limit = %v, %v", ok, err)
	}
}

// TestReadWriteFrame tests the blocking helpers used by the handshake
func TestReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("176\x00")); err != nil {
		t.Fatalf("writeFrame() error = %v", err)
	}
	if err := writeFrame(&buf, nil); err != nil {
		t.Fatalf("writeFrame() error = %v", err)
	}

	payload, err := ReadFrame(&buf, 1024)
	if err != nil || string(payload) != "176\x00" {
		t.Errorf("ReadFrame() = %q, %v", payload, err)
	}
	payload, err = ReadFrame(&buf, 1024)
	if err != nil || len(payload) != 0 {
		t.Errorf("ReadFrame() = %q, %v; want empty frame", payload, err)
	}

	buf.Write([]byte{0, 1, 0, 0})
	if _, err := ReadFrame(&buf, 1024); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

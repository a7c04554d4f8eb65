package audio_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/alfielabs/alfie-voice/pkg/audio"
)

// pcm16 builds a little-endian PCM byte slice from int16 samples.
func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func TestPCM16ToFloat32_SymmetricExtremes(t *testing.T) {
	t.Parallel()

	got := audio.PCM16ToFloat32(pcm16(-32768, 32767, 0))
	want := []float32{-1, 1, 0}

	if len(got) != len(want) {
		t.Fatalf("want %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: want %v, got %v", i, want[i], got[i])
		}
	}
}

func TestPCM16ToFloat32_IgnoresTrailingOddByte(t *testing.T) {
	t.Parallel()

	in := append(pcm16(100), 0x7f)
	if got := audio.PCM16ToFloat32(in); len(got) != 1 {
		t.Fatalf("want 1 sample, got %d", len(got))
	}
}

func TestFloat32ToPCM16_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	got := audio.Float32ToPCM16([]float32{2.5, -3})
	want := pcm16(32767, -32768)
	if !bytes.Equal(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	in := pcm16(-32768, -12345, -1, 0, 1, 12345, 32767)
	out := audio.Float32ToPCM16(audio.PCM16ToFloat32(in))
	if !bytes.Equal(in, out) {
		t.Fatalf("round trip changed samples:\n in=%v\nout=%v", in, out)
	}
}

func TestTransport_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := []byte{0x00, 0xff, 0x10, 0x20}
	decoded, err := audio.DecodeTransport(audio.EncodeTransport(raw))
	if err != nil {
		t.Fatalf("DecodeTransport: %v", err)
	}
	if !bytes.Equal(raw, decoded) {
		t.Fatalf("want %v, got %v", raw, decoded)
	}
}

func TestDecodeTransport_RejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := audio.DecodeTransport("not base64!!"); err == nil {
		t.Fatal("want error for invalid base64, got nil")
	}
}

func TestPCM16Duration(t *testing.T) {
	t.Parallel()

	// 24000 samples of mono PCM16 = 48000 bytes = exactly one second.
	d := audio.PCM16Duration(make([]byte, 48000), audio.DefaultSampleRate)
	if math.Abs(d.Seconds()-1.0) > 1e-9 {
		t.Fatalf("want 1s, got %v", d)
	}

	if d := audio.PCM16Duration(nil, audio.DefaultSampleRate); d != 0 {
		t.Fatalf("want 0 for empty slice, got %v", d)
	}
	if d := audio.PCM16Duration(make([]byte, 100), 0); d != 0 {
		t.Fatalf("want 0 for zero rate, got %v", d)
	}
}

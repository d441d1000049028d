package checksum

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFloat32sMatchesBytes(t *testing.T) {
	data := []float32{0, 1, -1.5, 3.14159, float32(math.Inf(1))}
	buf := make([]byte, 4*len(data))
	for i, f := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	want := Bytes(buf)
	got := Float32s(data)
	if got != want {
		t.Errorf("Float32s() = %#x, want %#x", got, want)
	}
}

func TestKnownVector(t *testing.T) {
	// CRC-32 of ASCII "123456789" is the standard conformance vector.
	got := Bytes([]byte("123456789"))
	const want = 0xCBF43926
	if got != want {
		t.Errorf("Bytes(\"123456789\") = %#x, want %#x", got, want)
	}
}

func TestEmpty(t *testing.T) {
	if got := Float32s(nil); got != 0 {
		t.Errorf("Float32s(nil) = %#x, want 0", got)
	}
}

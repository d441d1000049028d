package filter

import (
	"math"
	"testing"
)

func TestFastGaussianConstantIdempotent(t *testing.T) {
	const w, h = 8, 8
	data := make([]float32, w*h)
	for i := range data {
		data[i] = 3.5
	}
	g := NewFastGaussian(DefaultSigma)
	g.Apply(data, w, h)
	for i, v := range data {
		if v != 3.5 {
			t.Fatalf("data[%d] = %v, want 3.5 (constant input must be idempotent)", i, v)
		}
	}
}

func TestFastGaussianPreservesNonFinite(t *testing.T) {
	const w, h = 8, 8
	data := make([]float32, w*h)
	for i := range data {
		data[i] = float32(i)
	}
	data[10] = float32(math.NaN())
	g := NewFastGaussian(DefaultSigma)
	g.Apply(data, w, h)
	if !math.IsNaN(float64(data[10])) {
		t.Errorf("data[10] = %v, want NaN preserved", data[10])
	}
	for i, v := range data {
		if i == 10 {
			continue
		}
		if math.IsNaN(float64(v)) {
			t.Errorf("data[%d] became NaN unexpectedly", i)
		}
	}
}

func TestFastGaussianSinglePixelNoOp(t *testing.T) {
	data := []float32{4.2}
	g := NewFastGaussian(DefaultSigma)
	g.Apply(data, 1, 1)
	if data[0] != 4.2 {
		t.Errorf("1x1 filter must be a no-op, got %v", data[0])
	}
}

func TestFastGaussianNoRingingWithinRange(t *testing.T) {
	const w, h = 16, 16
	data := make([]float32, w*h)
	var min32, max32 float32 = 1e9, -1e9
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float32(0)
			if x > w/2 {
				v = 1
			}
			data[y*w+x] = v
			if v < min32 {
				min32 = v
			}
			if v > max32 {
				max32 = v
			}
		}
	}
	g := NewFastGaussian(DefaultSigma)
	g.Apply(data, w, h)
	for _, v := range data {
		if v < min32-1e-4 || v > max32+1e-4 {
			t.Fatalf("output %v out of input range [%v,%v]", v, min32, max32)
		}
	}
}

func TestFastGaussianNonPositiveSigmaNoOp(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	g := NewFastGaussian(0)
	g.Apply(data, 2, 2)
	if data[0] != 1 || data[1] != 2 || data[2] != 3 || data[3] != 4 {
		t.Errorf("sigma<=0 should be a no-op, got %v", data)
	}
}

package filter

import (
	"math"
	"testing"
)

func TestSpatialClassicConstantIdempotent(t *testing.T) {
	const w, h = 5, 5
	data := make([]float32, w*h)
	for i := range data {
		data[i] = 2.0
	}
	NewSpatial(KernelClassic).Apply(data, w, h)
	for i, v := range data {
		if v != 2.0 {
			t.Fatalf("data[%d] = %v, want 2.0", i, v)
		}
	}
}

func TestSpatialPreservesNonFiniteCenter(t *testing.T) {
	const w, h = 3, 3
	data := []float32{1, 2, 3, 4, float32(math.NaN()), 6, 7, 8, 9}
	NewSpatial(KernelClassic).Apply(data, w, h)
	if !math.IsNaN(float64(data[4])) {
		t.Errorf("center = %v, want NaN preserved", data[4])
	}
}

func TestSpatialNoFiniteNeighborUnchanged(t *testing.T) {
	nan := float32(math.NaN())
	data := []float32{
		nan, nan, nan,
		nan, 5, nan,
		nan, nan, nan,
	}
	NewSpatial(KernelClassic).Apply(data, 3, 3)
	if data[4] != 5 {
		t.Errorf("isolated finite cell with no finite neighbors should be unchanged, got %v", data[4])
	}
}

func TestSpatialWide5SingleCell(t *testing.T) {
	data := []float32{7}
	NewSpatial(KernelWide5).Apply(data, 1, 1)
	if data[0] != 7 {
		t.Errorf("1x1 spatial filter should leave the cell unchanged, got %v", data[0])
	}
}

func TestParseSpatialKernel(t *testing.T) {
	if ParseSpatialKernel("wide5") != KernelWide5 {
		t.Error("expected wide5 to parse to KernelWide5")
	}
	if ParseSpatialKernel("classic") != KernelClassic {
		t.Error("expected classic to parse to KernelClassic")
	}
	if ParseSpatialKernel("bogus") != KernelClassic {
		t.Error("expected unknown kernel name to default to KernelClassic")
	}
}

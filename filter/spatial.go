/*
NAME
  spatial.go

DESCRIPTION
  spatial.go implements the separable, NaN-aware spatial smoothing filter:
  a radius-1 [1 2 1] "classic" kernel or a radius-2 [1 4 6 4 1] "wide5"
  kernel, each renormalized by the weights of the finite neighbors actually
  sampled.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package filter

// Spatial applies one of the separable NaN-aware smoothing kernels in
// place, reusing an internal scratch buffer across calls.
type Spatial struct {
	Kernel  SpatialKernel
	scratch []float32
}

// NewSpatial returns a Spatial filter using the given kernel.
func NewSpatial(k SpatialKernel) *Spatial {
	return &Spatial{Kernel: k}
}

// Apply smooths data (width x height) in place. A non-finite center cell is
// preserved as non-finite. For each finite center, only finite neighbors
// contribute; if none exist (including the center), the cell is left
// unchanged.
func (s *Spatial) Apply(data []float32, width, height int) {
	applyKernel(s.Kernel, data, width, height, &s.scratch)
}

// kernelWeights returns, for the given kernel, the tap weight at offset 0..radius
// (weight(0) is the center weight).
func kernelWeights(k SpatialKernel) (radius int, weight func(offset int) float32) {
	switch k {
	case KernelWide5:
		return 2, func(offset int) float32 {
			switch offset {
			case 0:
				return 6
			case 1:
				return 4
			default:
				return 1
			}
		}
	default: // KernelClassic
		return 1, func(offset int) float32 {
			if offset == 0 {
				return 2
			}
			return 1
		}
	}
}

func applyKernel(k SpatialKernel, data []float32, width, height int, scratch *[]float32) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return
	}
	n := width * height
	if cap(*scratch) < n {
		*scratch = make([]float32, n)
	}
	buf := (*scratch)[:n]

	radius, weight := kernelWeights(k)

	// Horizontal pass: data -> buf.
	for y := 0; y < height; y++ {
		off := y * width
		for x := 0; x < width; x++ {
			c := data[off+x]
			if !isFinite(c) {
				buf[off+x] = c
				continue
			}
			var acc, wsum float32
			for dx := -radius; dx <= radius; dx++ {
				xx := x + dx
				if xx < 0 || xx >= width {
					continue
				}
				v := data[off+xx]
				if !isFinite(v) {
					continue
				}
				w := weight(abs(dx))
				acc += v * w
				wsum += w
			}
			if wsum > 0 {
				buf[off+x] = acc / wsum
			} else {
				buf[off+x] = c
			}
		}
	}

	// Vertical pass: buf -> data.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := buf[y*width+x]
			if !isFinite(c) {
				data[y*width+x] = c
				continue
			}
			var acc, wsum float32
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= height {
					continue
				}
				v := buf[yy*width+x]
				if !isFinite(v) {
					continue
				}
				w := weight(abs(dy))
				acc += v * w
				wsum += w
			}
			if wsum > 0 {
				data[y*width+x] = acc / wsum
			} else {
				data[y*width+x] = c
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

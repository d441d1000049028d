/*
NAME
  temporal.go

DESCRIPTION
  temporal.go implements the default temporal filter: a linear-time Gaussian
  approximation built from three successive box-blur passes (Kutskir's
  algorithm, as adapted by Fraboni), chosen so the combined kernel matches a
  target standard deviation.

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

import "math"

// DefaultSigma is the target standard deviation used when no override is
// configured.
const DefaultSigma = 1.5

// FastGaussian is a Temporal filter achieving near-Gaussian smoothing in
// O(n) time, independent of blur radius, via three box-blur passes.
type FastGaussian struct {
	sigma float64

	scratch []float32
	work    []float32
	mask    []bool
}

// NewFastGaussian returns a FastGaussian filter targeting the given standard
// deviation. A non-positive sigma disables smoothing (Apply becomes a
// no-op).
func NewFastGaussian(sigma float64) *FastGaussian {
	return &FastGaussian{sigma: sigma}
}

// Apply implements Temporal. Non-finite cells are preserved in the output;
// constant input maps to exactly itself.
func (g *FastGaussian) Apply(data []float32, width, height int) {
	if g.sigma <= 0 || width <= 0 || height <= 0 || len(data) != width*height {
		return
	}
	if width == 1 && height == 1 {
		return
	}

	boxes := stdToBoxes(g.sigma, 3)
	maxR := (minInt(width, height) - 1) / 2
	if maxR < 0 {
		maxR = 0
	}
	for i := range boxes {
		if boxes[i] > maxR {
			boxes[i] = maxR
		}
	}
	if boxes[0] == 0 && boxes[1] == 0 && boxes[2] == 0 {
		return
	}

	n := width * height
	if cap(g.scratch) < n {
		g.scratch = make([]float32, n)
		g.work = make([]float32, n)
		g.mask = make([]bool, n)
	}
	work := g.work[:n]
	scratch := g.scratch[:n]
	mask := g.mask[:n]

	for i, v := range data {
		if isFinite(v) {
			mask[i] = true
			work[i] = v
		} else {
			mask[i] = false
			work[i] = 0
		}
	}

	// Each full box-blur pass is horizontal then vertical; results land back
	// in `work` so the next pass reads its predecessor's output.
	for _, r := range boxes {
		horizontalBlur(work, scratch, width, height, r)
		verticalBlur(scratch, work, width, height, r)
	}

	for i := range data {
		if mask[i] {
			data[i] = work[i]
		} else {
			data[i] = float32(math.NaN())
		}
	}
}

// stdToBoxes computes n box-blur radii whose combined effect approximates a
// Gaussian of the given standard deviation, per the standard three-box
// formula.
func stdToBoxes(sigma float64, n int) []int {
	wi := math.Sqrt(12*sigma*sigma/float64(n) + 1)
	wl := math.Floor(wi)
	wli := int(wl)
	if wli%2 == 0 {
		wli--
	}
	wu := wli + 2

	mi := (12*sigma*sigma - float64(n)*float64(wli)*float64(wli) - 4*float64(n)*float64(wli) - 3*float64(n)) / (-4*float64(wli) - 4)
	m := int(math.Round(mi))

	boxes := make([]int, n)
	for i := 0; i < n; i++ {
		w := wu
		if i < m {
			w = wli
		}
		boxes[i] = (w - 1) / 2
	}
	return boxes
}

func horizontalBlur(in, out []float32, w, h, r int) {
	if r == 0 {
		copy(out, in)
		return
	}
	iarr := float32(1) / float32(r+r+1)
	for i := 0; i < h; i++ {
		ti := i * w
		li := ti
		ri := ti + r
		fv := in[ti]
		lv := in[ti+w-1]
		val := float32(r+1) * fv

		for j := 0; j < r; j++ {
			val += in[ti+j]
		}
		for j := 0; j <= r; j++ {
			val += in[ri] - fv
			ri++
			out[ti] = val * iarr
			ti++
		}
		for j := r + 1; j < w-r; j++ {
			val += in[ri] - in[li]
			ri++
			li++
			out[ti] = val * iarr
			ti++
		}
		for j := w - r; j < w; j++ {
			val += lv - in[li]
			li++
			out[ti] = val * iarr
			ti++
		}
	}
}

func verticalBlur(in, out []float32, w, h, r int) {
	if r == 0 {
		copy(out, in)
		return
	}
	iarr := float32(1) / float32(r+r+1)
	for i := 0; i < w; i++ {
		ti := i
		li := ti
		ri := ti + r*w
		fv := in[ti]
		lv := in[ti+w*(h-1)]
		val := float32(r+1) * fv

		for j := 0; j < r; j++ {
			val += in[ti+j*w]
		}
		for j := 0; j <= r; j++ {
			val += in[ri] - fv
			out[ti] = val * iarr
			ri += w
			ti += w
		}
		for j := r + 1; j < h-r; j++ {
			val += in[ri] - in[li]
			out[ti] = val * iarr
			li += w
			ri += w
			ti += w
		}
		for j := h - r; j < h; j++ {
			val += lv - in[li]
			out[ti] = val * iarr
			li += w
			ti += w
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

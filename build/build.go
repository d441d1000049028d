/*
NAME
  build.go

DESCRIPTION
  build.go converts a raw integer depth grid into a validated world-space
  point cloud and height map, using calibration planes to accept or reject
  each sample.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package build converts RawDepthFrame samples into a validated, calibrated
// world-space point cloud, amortizing buffer allocation across frames.
package build

import (
	"math"

	"github.com/ausocean/depth/frame"
)

// Summary reports how many cells of a built frame were accepted or
// rejected.
type Summary struct {
	Valid   int
	Invalid int
}

// Builder converts raw depth frames into point clouds, reusing its output
// buffer across calls.
type Builder struct {
	points []frame.Point3D
}

// New returns a Builder with no pre-allocated storage; the first Build call
// sizes its buffer.
func New() *Builder {
	return &Builder{}
}

// Build converts raw into a point cloud of length raw.Width*raw.Height using
// tp to accept or reject each sample, and depthScale to convert raw integer
// units into meters. The returned slice is owned by the Builder and is
// invalidated by the next call to Build.
func (b *Builder) Build(raw frame.RawDepthFrame, tp frame.TransformParameters, depthScale float64) ([]frame.Point3D, Summary) {
	n := int(raw.Width) * int(raw.Height)
	if cap(b.points) < n {
		b.points = make([]frame.Point3D, n)
	}
	b.points = b.points[:n]

	var summary Summary
	w, h := int(raw.Width), int(raw.Height)
	cx := float64(w-1) / 2
	cy := float64(h-1) / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			wx := float32(float64(x) - cx)
			wy := float32(float64(y) - cy)

			d := raw.At(uint32(x), uint32(y))
			if i >= len(raw.Data) {
				// Beyond the provided (short) data: materialize as invalid
				// with z = 0, per the frame builder's short-buffer policy.
				b.points[i] = frame.Point3D{X: wx, Y: wy, Z: 0, Valid: false}
				summary.Invalid++
				continue
			}
			if d == 0 {
				b.points[i] = frame.Point3D{X: wx, Y: wy, Z: float32(math.NaN()), Valid: false}
				summary.Invalid++
				continue
			}

			z := float64(d) * depthScale
			if !tp.Accept(float64(wx), float64(wy), z) {
				b.points[i] = frame.Point3D{X: wx, Y: wy, Z: float32(math.NaN()), Valid: false}
				summary.Invalid++
				continue
			}

			b.points[i] = frame.Point3D{X: wx, Y: wy, Z: float32(z), Valid: true}
			summary.Valid++
		}
	}
	return b.points, summary
}

// Height writes the z-component of points into hm, sized to width x height.
// Invalid points become non-finite cells.
func Height(points []frame.Point3D, width, height uint32, hm *frame.HeightMap) {
	hm.EnsureSize(width, height)
	for i, p := range points {
		if i >= len(hm.Data) {
			break
		}
		if p.Valid {
			hm.Data[i] = p.Z
		} else {
			hm.Data[i] = float32(math.NaN())
		}
	}
}

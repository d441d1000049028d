/*
NAME
  frame.go

DESCRIPTION
  frame.go defines the data types shared across the depth-fusion pipeline:
  the raw sensor contract, the per-pixel point cloud, the calibrated height
  map, and the published WorldFrame.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package frame defines the data model shared by every stage of the
// depth-sensor fusion pipeline: raw sensor frames, the intermediate point
// cloud, calibrated height maps, and the published WorldFrame.
package frame

import "math"

// RawDepthFrame is a single frame of raw sensor samples, as delivered by the
// (out-of-scope) sensor acquisition HAL. A sample value of 0 denotes "no
// measurement". Data shorter than Width*Height is tolerated: missing cells
// are treated as invalid. Extra cells beyond Width*Height are ignored.
type RawDepthFrame struct {
	SensorID    string
	TimestampNS uint64
	Width       uint32
	Height      uint32
	Data        []uint16
}

// At returns the raw sample at (x, y), or 0 if the cell is beyond the
// provided data (a short buffer).
func (f *RawDepthFrame) At(x, y uint32) uint16 {
	i := int(y)*int(f.Width) + int(x)
	if i < 0 || i >= len(f.Data) {
		return 0
	}
	return f.Data[i]
}

// Point3D is one point of a validated world-space point cloud. X and Y are
// pixel offsets from the optical center; Z is metric depth. When Valid is
// false, Z is NaN, except for cells beyond a short raw buffer, which are
// invalid with Z = 0.
type Point3D struct {
	X, Y, Z float32
	Valid   bool
}

// HeightMap is a calibrated world-elevation grid. A non-finite cell denotes
// "invalid at this pixel".
type HeightMap struct {
	Width, Height uint32
	Data          []float32
}

// EnsureSize grows Data to Width*Height (zero-valued) if necessary, reusing
// the existing backing array when it is already large enough. It is the
// amortized-allocation idiom used throughout the pipeline's hot path.
func (h *HeightMap) EnsureSize(width, height uint32) {
	h.Width, h.Height = width, height
	n := int(width) * int(height)
	if cap(h.Data) < n {
		h.Data = make([]float32, n)
		return
	}
	h.Data = h.Data[:n]
}

// WorldFrame is the consolidated output of one pipeline cycle: a calibrated,
// filtered, fused height map plus its integrity checksum. FrameID is
// strictly monotonic per publisher instance; TimestampNS is non-decreasing.
type WorldFrame struct {
	FrameID           uint64
	TimestampNS       uint64
	HeightMap         HeightMap
	Checksum          uint32
	ChecksumAlgorithm uint32
}

// TransformPlane is one plane of a calibration band test: a_min*x + b_min*y
// + c_min*z + d_min (see TransformParameters.Accept).
type TransformPlane struct {
	A, B, C, D float64
}

// eval evaluates the plane equation at the given point.
func (p TransformPlane) eval(x, y, z float64) float64 {
	return p.A*x + p.B*y + p.C*z + p.D
}

// TransformParameters defines the valid depth band for the frame builder: a
// point is accepted iff it lies on the non-negative side of Min and the
// non-positive side of Max.
type TransformParameters struct {
	Min TransformPlane
	Max TransformPlane
}

// DefaultTransformParameters returns the documented default band: accept
// z in [0, 2] meters, independent of x and y.
func DefaultTransformParameters() TransformParameters {
	return TransformParameters{
		Min: TransformPlane{A: 0, B: 0, C: 1, D: 0},
		Max: TransformPlane{A: 0, B: 0, C: 1, D: -2},
	}
}

// Accept reports whether the point (x, y, z) lies within the calibrated
// depth band.
func (t TransformParameters) Accept(x, y, z float64) bool {
	return t.Min.eval(x, y, z) >= 0 && t.Max.eval(x, y, z) <= 0
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

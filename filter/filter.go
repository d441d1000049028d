/*
NAME
  filter.go

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package filter provides the temporal and spatial height-map smoothing
// filters applied by the processing pipeline between frame build and
// fusion.
package filter

import "math"

// Temporal is the interface for a pluggable in-place filter over a height
// map buffer of dimensions width x height. Implementations must preserve
// non-finite cells.
type Temporal interface {
	Apply(data []float32, width, height int)
}

// SpatialKernel selects one of the separable NaN-aware smoothing kernels.
type SpatialKernel int

const (
	// KernelClassic is the radius-1 [1 2 1] kernel (the default).
	KernelClassic SpatialKernel = iota
	// KernelWide5 is the radius-2 [1 4 6 4 1] kernel.
	KernelWide5
)

// ParseSpatialKernel maps a configuration string to a SpatialKernel,
// defaulting to KernelClassic for any unrecognised value.
func ParseSpatialKernel(name string) SpatialKernel {
	switch name {
	case "wide5":
		return KernelWide5
	default:
		return KernelClassic
	}
}

// StrongKernel selects the behavior of a second, more aggressive smoothing
// pass triggered under strong adaptive conditions.
type StrongKernel int

const (
	StrongClassicDouble StrongKernel = iota
	StrongWide5
	StrongFastGauss
)

// ParseStrongKernel maps a configuration string to a StrongKernel,
// defaulting to StrongClassicDouble for any unrecognised value.
func ParseStrongKernel(name string) StrongKernel {
	switch name {
	case "wide5":
		return StrongWide5
	case "fastgauss":
		return StrongFastGauss
	default:
		return StrongClassicDouble
	}
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

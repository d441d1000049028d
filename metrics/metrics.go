/*
NAME
  metrics.go

DESCRIPTION
  metrics.go computes per-frame stability and confidence metrics over a
  fused height map, and tracks the adaptive gating state (hysteresis
  streaks, strong-pass activation, adaptive temporal blend) carried
  across frames by the pipeline.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package metrics derives stability, confidence, and adaptive-gating
// state from a fused height map, matching the EMA/hysteresis scheme
// the pipeline uses to decide when spatial smoothing and temporal
// blending should activate.
package metrics

import (
	"math"

	"github.com/ausocean/depth/frame"
)

const sampleLimit = 512

// Weights are the per-pixel confidence blend weights (wS, wR, wT).
type Weights struct {
	Stability       float64
	SpatialVariance float64
	Temporal        float64
}

// DefaultWeights matches the documented (0.5, 0.3, 0.2) default.
func DefaultWeights() Weights {
	return Weights{Stability: 0.5, SpatialVariance: 0.3, Temporal: 0.2}
}

// Thresholds classify a scalar confidence value as low or high.
type Thresholds struct {
	Low  float64
	High float64
}

// DefaultThresholds matches the documented 0.3/0.75 defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.3, High: 0.75}
}

// GatingParams configures the adaptive spatial/strong-pass hysteresis.
type GatingParams struct {
	Mode           int     // 0 = adaptive gating off, 2 = streak-based hysteresis
	StabMin        float64 // unstable if stabilityRatio below this
	VarMax         float64 // unstable if avgVariance above this
	OnStreak       int     // consecutive unstable frames before spatial activates
	OffStreak      int     // consecutive stable frames before spatial deactivates
	StrongVarMult  float64 // strong active if avgVariance > StrongVarMult*VarMax
	StrongStabFrac float64 // strong active if stabilityRatio < this
}

// DefaultGatingParams matches spec §4.6/§6's documented defaults.
func DefaultGatingParams() GatingParams {
	return GatingParams{
		Mode:           2,
		StabMin:        0.85,
		VarMax:         0.01,
		OnStreak:       2,
		OffStreak:      3,
		StrongVarMult:  3.0,
		StrongStabFrac: 0.5,
	}
}

// StabilityMetrics is one frame's derived statistics.
type StabilityMetrics struct {
	AvgVariance                  float64
	StabilityRatio               float64
	SpatialVarianceRatio         float64
	SpatialEdgePreservationRatio float64
	MeanConfidence               float64
	FractionLowConfidence        float64
	FractionHighConfidence       float64
}

// AdaptiveState is the gating memory carried across frames by the
// pipeline: EMA variance, hysteresis streak counters, the current
// spatial/strong activation latch, and the previous filtered frame used
// for adaptive temporal blending.
type AdaptiveState struct {
	params GatingParams

	emaVariance float64
	emaValid    bool

	unstableStreak int
	stableStreak   int
	spatialActive  bool
	strongActive   bool

	temporalScale float64 // k; <= 1 disables adaptive temporal blending
	prevFiltered  []float32
}

// NewAdaptiveState returns gating state with the given parameters and
// adaptive temporal blend scale k (k <= 1 disables blending).
func NewAdaptiveState(params GatingParams, temporalScale float64) *AdaptiveState {
	return &AdaptiveState{params: params, temporalScale: temporalScale}
}

// SpatialActive reports whether the spatial filter stage should run this
// frame, based on gating decided at the end of the previous frame.
func (s *AdaptiveState) SpatialActive() bool { return s.spatialActive }

// StrongActive reports whether the strong second pass should run.
func (s *AdaptiveState) StrongActive() bool { return s.strongActive }

// TemporalBlendActive reports whether adaptive temporal blending should
// run this frame: configured with k>1, gated unstable, and a previous
// filtered frame is available.
func (s *AdaptiveState) TemporalBlendActive() bool {
	return s.temporalScale > 1 && s.spatialActive && s.prevFiltered != nil
}

// Blend mixes cur with the previous filtered frame cell-wise over finite
// pairs, storing the result back into cur, when TemporalBlendActive.
// Cells where either value is non-finite are left unchanged. Call before
// this frame's Compute (which takes whether the blend ran); the gate it
// reads was latched by the previous frame's UpdateGating.
func (s *AdaptiveState) Blend(cur []float32) {
	if !s.TemporalBlendActive() || len(cur) != len(s.prevFiltered) {
		return
	}
	alpha := float32(1 / s.temporalScale)
	for i, v := range cur {
		p := s.prevFiltered[i]
		if frame.IsFinite(v) && frame.IsFinite(p) {
			cur[i] = alpha*v + (1-alpha)*p
		}
	}
}

// StorePrevFiltered remembers heights for the next frame's adaptive
// temporal blend. Call once per frame, after Blend.
func (s *AdaptiveState) StorePrevFiltered(heights []float32) {
	if cap(s.prevFiltered) < len(heights) {
		s.prevFiltered = make([]float32, len(heights))
	}
	s.prevFiltered = s.prevFiltered[:len(heights)]
	copy(s.prevFiltered, heights)
}

// isUnstable classifies a frame as unstable per §4.6's disjunction.
func (s *AdaptiveState) isUnstable(m StabilityMetrics) bool {
	return m.StabilityRatio < s.params.StabMin || m.AvgVariance > s.params.VarMax
}

// UpdateGating advances the hysteresis streak counters from this frame's
// classification and latches spatialActive/strongActive for use gating
// the NEXT frame's stages.
func (s *AdaptiveState) UpdateGating(m StabilityMetrics) {
	if s.params.Mode == 0 {
		// Adaptive gating off: spatial/strong never latch on and the
		// streak counters don't advance, so a later mode switch starts
		// hysteresis from a clean slate.
		s.unstableStreak = 0
		s.stableStreak = 0
		s.spatialActive = false
		s.strongActive = false
		return
	}

	if s.isUnstable(m) {
		s.unstableStreak++
		s.stableStreak = 0
	} else {
		s.stableStreak++
		s.unstableStreak = 0
	}

	if !s.spatialActive && s.unstableStreak >= s.params.OnStreak {
		s.spatialActive = true
	} else if s.spatialActive && s.stableStreak >= s.params.OffStreak {
		s.spatialActive = false
	}

	s.strongActive = s.spatialActive &&
		(m.AvgVariance > s.params.StrongVarMult*s.params.VarMax || m.StabilityRatio < s.params.StrongStabFrac)
}

// Compute derives this frame's stability metrics from the fused height
// map (row-major, width x height), the pre/post-spatial-filter samples
// (may be nil if the spatial filter did not run this frame), the
// per-pixel confidence inputs, and whether adaptive temporal blending
// ran this frame.
func Compute(state *AdaptiveState, heights []float32, width, height int, validIn []bool, preSpatial, postSpatial []float32, weights Weights, thresholds Thresholds, temporalBlended bool) (StabilityMetrics, []float32) {
	var m StabilityMetrics

	rawMeanAbsDiff, pairCount := 0.0, 0
	within := 0
	const eps = 1e-6

	// First pass: raw mean |horizontal neighbor diff|.
	for y := 0; y < height; y++ {
		for x := 0; x < width-1; x++ {
			i := y*width + x
			a, b := heights[i], heights[i+1]
			if !frame.IsFinite(a) || !frame.IsFinite(b) {
				continue
			}
			rawMeanAbsDiff += math.Abs(float64(a - b))
			pairCount++
		}
	}
	if pairCount > 0 {
		rawMeanAbsDiff /= float64(pairCount)
	}

	// Second pass: stability ratio against this frame's raw threshold.
	threshold := 1.5*rawMeanAbsDiff + eps
	for y := 0; y < height; y++ {
		for x := 0; x < width-1; x++ {
			i := y*width + x
			a, b := heights[i], heights[i+1]
			if !frame.IsFinite(a) || !frame.IsFinite(b) {
				continue
			}
			if math.Abs(float64(a-b)) <= threshold {
				within++
			}
		}
	}
	if pairCount > 0 {
		m.StabilityRatio = float64(within) / float64(pairCount)
	} else {
		m.StabilityRatio = 1
	}

	if state.emaValid {
		state.emaVariance = 0.1*rawMeanAbsDiff + 0.9*state.emaVariance
	} else {
		state.emaVariance = rawMeanAbsDiff
		state.emaValid = true
	}
	m.AvgVariance = state.emaVariance

	if preSpatial != nil && postSpatial != nil {
		m.SpatialVarianceRatio, m.SpatialEdgePreservationRatio = sampleRatios(preSpatial, postSpatial, width, height)
	}

	conf := make([]float32, len(heights))
	r := m.SpatialVarianceRatio
	if preSpatial == nil || postSpatial == nil || math.IsNaN(r) || r < 0 {
		r = 1
	}
	tVal := 0.0
	if temporalBlended {
		tVal = 1
	}
	sumW := weights.Stability + weights.SpatialVariance + weights.Temporal
	raw := 0.0
	if sumW > 0 {
		raw = (weights.Stability*m.StabilityRatio + weights.SpatialVariance*(1-math.Min(1, r)) + weights.Temporal*tVal) / sumW
	}
	combined := clip(raw, 0, 1)

	var confSum float64
	validCount, lowCount, highCount := 0, 0, 0
	for i := range conf {
		if validIn != nil && i < len(validIn) && !validIn[i] {
			conf[i] = 0
			continue
		}
		if !frame.IsFinite(heights[i]) {
			conf[i] = 0
			continue
		}
		conf[i] = float32(combined)
		confSum += combined
		validCount++
		if combined < thresholds.Low {
			lowCount++
		}
		if combined > thresholds.High {
			highCount++
		}
	}
	if validCount > 0 {
		m.MeanConfidence = confSum / float64(validCount)
		m.FractionLowConfidence = float64(lowCount) / float64(validCount)
		m.FractionHighConfidence = float64(highCount) / float64(validCount)
	}

	return m, conf
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sampleRatios computes post/pre variance and post/pre mean |gradient|
// over a deterministic stride-selected sample of up to sampleLimit
// cells, matching §4.6's "deterministic sample of up to 512 cells".
func sampleRatios(pre, post []float32, width, height int) (varianceRatio, edgeRatio float64) {
	n := len(pre)
	if n == 0 || n != len(post) {
		return 0, 0
	}
	stride := 1
	if n > sampleLimit {
		stride = n / sampleLimit
	}

	var preMean, postMean float64
	var count int
	for i := 0; i < n; i += stride {
		preMean += float64(pre[i])
		postMean += float64(post[i])
		count++
	}
	if count == 0 {
		return 0, 0
	}
	preMean /= float64(count)
	postMean /= float64(count)

	var preVar, postVar float64
	for i := 0; i < n; i += stride {
		dp := float64(pre[i]) - preMean
		dq := float64(post[i]) - postMean
		preVar += dp * dp
		postVar += dq * dq
	}
	preVar /= float64(count)
	postVar /= float64(count)

	var preGrad, postGrad float64
	gradCount := 0
	for i := 0; i < n; i += stride {
		x := i % width
		if x >= width-1 || i+1 >= n {
			continue
		}
		preGrad += math.Abs(float64(pre[i+1] - pre[i]))
		postGrad += math.Abs(float64(post[i+1] - post[i]))
		gradCount++
	}
	if gradCount > 0 {
		preGrad /= float64(gradCount)
		postGrad /= float64(gradCount)
	}

	if preVar > 0 {
		varianceRatio = postVar / preVar
	}
	if preGrad > 0 {
		edgeRatio = postGrad / preGrad
	}
	return varianceRatio, edgeRatio
}

/*
NAME
  fusion.go

DESCRIPTION
  fusion.go implements the per-frame fusion accumulator: it collects one or
  more sensor layers, reconciles them by confidence-weighted average with a
  per-pixel min-z fallback, and tracks sensor dropout across frames.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package fusion reconciles the height-map layers contributed by concurrent
// sensors within one frame into a single fused height map, per
// beginFrame/addLayer/fuse lifecycle.
package fusion

import (
	"math"

	"github.com/ausocean/depth/frame"
)

// Strategy identifies which reconciliation rule produced a fused frame.
type Strategy int

const (
	StrategyMinZ       Strategy = 0
	StrategyConfidence Strategy = 1
)

// DefaultDropoutWindow is the number of frames a previously-seen sensor may
// be absent before it is counted as stale.
const DefaultDropoutWindow = 60

// Layer is one sensor's ephemeral contribution to the current frame.
// Storage is owned by the Accumulator after AddLayer returns.
type Layer struct {
	SensorID   string
	Heights    []float32
	Confidence []float32 // optional; nil if this sensor doesn't report confidence
	Width      uint32
	Height     uint32
}

// Stats reports per-frame fusion statistics.
type Stats struct {
	LayerCount         int
	ActiveLayerCount   int
	StaleExcludedCount int
	LayerValidCounts   []int
	FusedValidCount    int
	FusedValidRatio    float64
	FallbackMinZCount  int
	FallbackEmptyCount int
	Strategy           Strategy
}

type layerEntry struct {
	sensorID      string
	heightsOffset int
	confOffset    int
	hasConfidence bool
}

// Accumulator collects per-sensor layers within a frame and fuses them. Call
// BeginFrame, zero or more AddLayer, then exactly one Fuse, per frame.
type Accumulator struct {
	dropoutWindow uint64

	frameID uint64
	width   uint32
	height  uint32
	pixels  int

	layers           []layerEntry
	heightsStorage   []float32
	confStorage      []float32
	lastSeenFrameID  map[string]uint64

	stats Stats
}

// New returns an Accumulator with the documented default dropout window.
func New() *Accumulator {
	return &Accumulator{
		dropoutWindow:   DefaultDropoutWindow,
		lastSeenFrameID: make(map[string]uint64),
	}
}

// SetDropoutWindow overrides the default dropout window (in frames).
func (a *Accumulator) SetDropoutWindow(frames uint64) {
	a.dropoutWindow = frames
}

// BeginFrame starts collecting layers for frameID, sized width x height.
func (a *Accumulator) BeginFrame(frameID uint64, width, height uint32) {
	a.frameID = frameID
	a.width = width
	a.height = height
	a.pixels = int(width) * int(height)

	a.layers = a.layers[:0]
	a.heightsStorage = a.heightsStorage[:0]
	a.confStorage = a.confStorage[:0]
	a.stats = Stats{}
}

// AddLayer appends layer's storage to the accumulator. Layers with
// mismatched dimensions or a nil Heights buffer are silently rejected.
func (a *Accumulator) AddLayer(layer Layer) {
	if layer.Heights == nil || layer.Width != a.width || layer.Height != a.height {
		return
	}
	entry := layerEntry{
		sensorID:      layer.SensorID,
		heightsOffset: len(a.heightsStorage),
		hasConfidence: layer.Confidence != nil,
	}
	a.heightsStorage = append(a.heightsStorage, layer.Heights...)

	validCount := 0
	for _, v := range layer.Heights {
		if frame.IsFinite(v) {
			validCount++
		}
	}

	if entry.hasConfidence {
		entry.confOffset = len(a.confStorage)
		a.confStorage = append(a.confStorage, layer.Confidence...)
	}

	a.layers = append(a.layers, entry)
	a.stats.LayerValidCounts = append(a.stats.LayerValidCounts, validCount)
	a.stats.LayerCount = len(a.layers)
	a.stats.ActiveLayerCount = len(a.layers)
	a.lastSeenFrameID[layer.SensorID] = a.frameID
}

// heightsOf returns the slice of heights contributed by layer i.
func (a *Accumulator) heightsOf(i int) []float32 {
	return a.heightsStorage[a.layers[i].heightsOffset : a.layers[i].heightsOffset+a.pixels]
}

// confOf returns the slice of confidences contributed by layer i, or nil if
// that layer didn't report confidence.
func (a *Accumulator) confOf(i int) []float32 {
	if !a.layers[i].hasConfidence {
		return nil
	}
	return a.confStorage[a.layers[i].confOffset : a.layers[i].confOffset+a.pixels]
}

// Fuse reconciles the collected layers into outHeights (resized to
// width*height), optionally writing per-pixel fused confidence into
// outConfidence, and returns this frame's statistics. It also updates
// sensor-dropout bookkeeping.
func (a *Accumulator) Fuse(outHeights *[]float32, outConfidence *[]float32) Stats {
	a.updateDropout()

	anyConfidence := false
	for _, l := range a.layers {
		if l.hasConfidence {
			anyConfidence = true
			break
		}
	}

	switch {
	case len(a.layers) == 0:
		*outHeights = (*outHeights)[:0]
		if outConfidence != nil {
			*outConfidence = (*outConfidence)[:0]
		}
	case len(a.layers) == 1 && !anyConfidence:
		// Passthrough: a single layer needs no weighting or fallback logic,
		// but a non-finite cell still has no finite contribution and must
		// publish as exactly 0.0, matching the "no finite contribution"
		// rule fuseConfidenceWeighted applies.
		a.resize(outHeights, a.pixels)
		heights := *outHeights
		copy(heights, a.heightsOf(0))
		for px, h := range heights {
			if !frame.IsFinite(h) {
				heights[px] = 0
				a.stats.FallbackEmptyCount++
				continue
			}
			a.stats.FusedValidCount++
		}
		if outConfidence != nil {
			*outConfidence = (*outConfidence)[:0]
		}
	case anyConfidence:
		// Also covers the single-layer-with-confidence case: the weighted
		// average of one weight reduces to its own passthrough value, while
		// still zero-filling any all-invalid pixel per the universal
		// "no finite contribution" rule.
		a.fuseConfidenceWeighted(outHeights, outConfidence)
	default:
		a.fuseMinZ(outHeights, outConfidence)
	}

	if a.pixels > 0 {
		a.stats.FusedValidRatio = float64(a.stats.FusedValidCount) / float64(a.pixels)
	}
	return a.stats
}

func (a *Accumulator) resize(s *[]float32, n int) {
	if cap(*s) < n {
		*s = make([]float32, n)
	}
	*s = (*s)[:n]
}

func clampWeight(w float32) float32 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

func (a *Accumulator) fuseConfidenceWeighted(outHeights, outConfidence *[]float32) {
	a.stats.Strategy = StrategyConfidence
	a.resize(outHeights, a.pixels)
	var confBuf []float32
	if outConfidence != nil {
		a.resize(outConfidence, a.pixels)
		confBuf = *outConfidence
	}
	heights := *outHeights

	layerHeights := make([][]float32, len(a.layers))
	layerConf := make([][]float32, len(a.layers))
	for i := range a.layers {
		layerHeights[i] = a.heightsOf(i)
		layerConf[i] = a.confOf(i)
	}

	for px := 0; px < a.pixels; px++ {
		var wsum, whsum float32
		var wsumSq float32
		minFinite := float32(math.NaN())
		anyFinite := false
		for li := range a.layers {
			h := layerHeights[li][px]
			if !frame.IsFinite(h) {
				continue
			}
			anyFinite = true
			if !frame.IsFinite(minFinite) || h < minFinite {
				minFinite = h
			}
			var w float32 = 1
			if c := layerConf[li]; c != nil {
				w = clampWeight(c[px])
			}
			if w <= 0 {
				continue
			}
			wsum += w
			whsum += w * h
			wsumSq += w * w
		}

		switch {
		case wsum > 0:
			heights[px] = whsum / wsum
			if confBuf != nil {
				confBuf[px] = wsumSq / wsum
			}
			a.stats.FusedValidCount++
		case anyFinite:
			heights[px] = minFinite
			if confBuf != nil {
				confBuf[px] = 0
			}
			a.stats.FallbackMinZCount++
			a.stats.FusedValidCount++
		default:
			heights[px] = 0
			if confBuf != nil {
				confBuf[px] = 0
			}
			a.stats.FallbackEmptyCount++
		}
	}
}

func (a *Accumulator) fuseMinZ(outHeights, outConfidence *[]float32) {
	a.stats.Strategy = StrategyMinZ
	a.resize(outHeights, a.pixels)
	if outConfidence != nil {
		*outConfidence = (*outConfidence)[:0]
	}
	heights := *outHeights

	layerHeights := make([][]float32, len(a.layers))
	for i := range a.layers {
		layerHeights[i] = a.heightsOf(i)
	}

	for px := 0; px < a.pixels; px++ {
		minFinite := float32(math.NaN())
		anyFinite := false
		for li := range a.layers {
			h := layerHeights[li][px]
			if !frame.IsFinite(h) {
				continue
			}
			anyFinite = true
			if !frame.IsFinite(minFinite) || h < minFinite {
				minFinite = h
			}
		}
		if anyFinite {
			heights[px] = minFinite
			a.stats.FusedValidCount++
		} else {
			heights[px] = 0
			a.stats.FallbackEmptyCount++
		}
	}
}

// updateDropout counts, among previously-seen sensors absent from this
// frame's layers, those absent for strictly more than the dropout window.
func (a *Accumulator) updateDropout() {
	seenThisFrame := make(map[string]bool, len(a.layers))
	for _, l := range a.layers {
		seenThisFrame[l.sensorID] = true
	}
	stale := 0
	for sensorID, lastSeen := range a.lastSeenFrameID {
		if seenThisFrame[sensorID] {
			continue
		}
		absence := a.frameID - lastSeen
		if absence > a.dropoutWindow {
			stale++
		}
	}
	a.stats.StaleExcludedCount = stale
}

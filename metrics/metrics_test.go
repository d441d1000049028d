package metrics

import (
	"math"
	"testing"
)

func TestComputeConstantFrameIsStable(t *testing.T) {
	state := NewAdaptiveState(DefaultGatingParams(), 0)
	heights := make([]float32, 16)
	for i := range heights {
		heights[i] = 3.0
	}
	m, conf := Compute(state, heights, 4, 4, nil, nil, nil, DefaultWeights(), DefaultThresholds(), false)
	if m.StabilityRatio != 1 {
		t.Errorf("StabilityRatio = %v, want 1 for constant frame", m.StabilityRatio)
	}
	if m.AvgVariance != 0 {
		t.Errorf("AvgVariance = %v, want 0 for constant frame", m.AvgVariance)
	}
	for i, c := range conf {
		if c <= 0 {
			t.Errorf("conf[%d] = %v, want > 0 for a stable valid cell", i, c)
		}
	}
}

func TestComputeInvalidCellsGetZeroConfidence(t *testing.T) {
	state := NewAdaptiveState(DefaultGatingParams(), 0)
	heights := []float32{1, 2, 3, 4}
	valid := []bool{true, false, true, true}
	_, conf := Compute(state, heights, 2, 2, valid, nil, nil, DefaultWeights(), DefaultThresholds(), false)
	if conf[1] != 0 {
		t.Errorf("conf[1] = %v, want 0 for an invalid source cell", conf[1])
	}
}

func TestComputeNonFiniteCellsGetZeroConfidence(t *testing.T) {
	state := NewAdaptiveState(DefaultGatingParams(), 0)
	nan := float32(math.NaN())
	heights := []float32{1, nan, 3, 4}
	_, conf := Compute(state, heights, 2, 2, nil, nil, nil, DefaultWeights(), DefaultThresholds(), false)
	if conf[1] != 0 {
		t.Errorf("conf[1] = %v, want 0 for a non-finite height", conf[1])
	}
}

func TestGatingHysteresisOnOffStreaks(t *testing.T) {
	params := DefaultGatingParams()
	params.OnStreak = 2
	params.OffStreak = 3
	state := NewAdaptiveState(params, 0)

	unstable := StabilityMetrics{StabilityRatio: 0.1, AvgVariance: 1.0}
	stable := StabilityMetrics{StabilityRatio: 0.99, AvgVariance: 0.0}

	state.UpdateGating(unstable)
	if state.SpatialActive() {
		t.Fatal("spatial should not activate after 1 unstable frame (onStreak=2)")
	}
	state.UpdateGating(unstable)
	if !state.SpatialActive() {
		t.Fatal("spatial should activate after 2 consecutive unstable frames")
	}

	state.UpdateGating(stable)
	state.UpdateGating(stable)
	if !state.SpatialActive() {
		t.Fatal("spatial should remain active after only 2 stable frames (offStreak=3)")
	}
	state.UpdateGating(stable)
	if state.SpatialActive() {
		t.Fatal("spatial should deactivate after 3 consecutive stable frames")
	}
}

func TestStrongActiveRequiresSpatialActive(t *testing.T) {
	params := DefaultGatingParams()
	params.OnStreak = 100 // never activates spatial in this test
	state := NewAdaptiveState(params, 0)

	veryUnstable := StabilityMetrics{StabilityRatio: 0.01, AvgVariance: 1.0}
	state.UpdateGating(veryUnstable)
	if state.StrongActive() {
		t.Fatal("strong pass must not activate while spatial is inactive")
	}
}

func TestModeZeroDisablesGating(t *testing.T) {
	params := DefaultGatingParams()
	params.Mode = 0
	params.OnStreak = 1
	state := NewAdaptiveState(params, 0)

	veryUnstable := StabilityMetrics{StabilityRatio: 0.01, AvgVariance: 1.0}
	for i := 0; i < 5; i++ {
		state.UpdateGating(veryUnstable)
	}
	if state.SpatialActive() {
		t.Fatal("spatial must never activate with Mode=0, regardless of streak length")
	}
	if state.StrongActive() {
		t.Fatal("strong must never activate with Mode=0")
	}
}

func TestStrongActivatesOnExtremeInstability(t *testing.T) {
	params := DefaultGatingParams()
	params.OnStreak = 1
	state := NewAdaptiveState(params, 0)

	veryUnstable := StabilityMetrics{StabilityRatio: 0.01, AvgVariance: 1.0}
	state.UpdateGating(veryUnstable)
	if !state.StrongActive() {
		t.Fatal("strong pass should activate when spatial is active and stability is far below strongStabFrac")
	}
}

func TestAdaptiveTemporalBlendRequiresScaleAboveOne(t *testing.T) {
	state := NewAdaptiveState(DefaultGatingParams(), 1.0)
	state.StorePrevFiltered([]float32{1, 2})
	state.spatialActive = true
	if state.TemporalBlendActive() {
		t.Fatal("temporal blend must stay off when scale k <= 1")
	}
}

func TestBlendMixesFinitePairs(t *testing.T) {
	state := NewAdaptiveState(DefaultGatingParams(), 2.0)
	state.spatialActive = true
	state.StorePrevFiltered([]float32{10, 10})
	cur := []float32{20, 20}
	state.Blend(cur)
	for i, v := range cur {
		if v != 15 {
			t.Errorf("cur[%d] = %v, want 15 (alpha=0.5 blend of 20 and 10)", i, v)
		}
	}
}

func TestSampleRatiosIdenticalFramesRatioOne(t *testing.T) {
	pre := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	post := make([]float32, len(pre))
	copy(post, pre)
	vr, er := sampleRatios(pre, post, 3, 3)
	if vr != 1 {
		t.Errorf("varianceRatio = %v, want 1 for identical frames", vr)
	}
	if er != 1 {
		t.Errorf("edgeRatio = %v, want 1 for identical frames", er)
	}
}

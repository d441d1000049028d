package pipeline

import (
	"testing"

	"github.com/ausocean/depth/filter"
	"github.com/ausocean/depth/frame"
	"github.com/ausocean/depth/metrics"
	"github.com/ausocean/utils/logging"
)

// testLogger adapts *testing.T to logging.Logger, matching the
// teacher's revid.testLogger pattern.
type testLogger testing.T

func (tl *testLogger) Debug(msg string, args ...interface{})   { tl.Logf("debug: %s %v", msg, args) }
func (tl *testLogger) Info(msg string, args ...interface{})    { tl.Logf("info: %s %v", msg, args) }
func (tl *testLogger) Warning(msg string, args ...interface{}) { tl.Logf("warning: %s %v", msg, args) }
func (tl *testLogger) Error(msg string, args ...interface{})   { tl.Logf("error: %s %v", msg, args) }
func (tl *testLogger) Fatal(msg string, args ...interface{})   { tl.Fatalf("fatal: %s %v", msg, args) }
func (tl *testLogger) SetLevel(lvl int8)                       {}

func (tl *testLogger) Logf(format string, args ...interface{}) { (*testing.T)(tl).Logf(format, args...) }

var _ logging.Logger = (*testLogger)(nil)

func baseOptions(t *testing.T) Options {
	return Options{
		Logger:         (*testLogger)(t),
		Spec:           DefaultSpec,
		DepthScale:     0.001,
		Transform:      frame.DefaultTransformParameters(),
		TemporalSigma:  0, // disable temporal smoothing for deterministic single-frame assertions
		SpatialKernel:  filter.KernelClassic,
		DropoutWindow:  60,
		AdaptiveParams: metrics.DefaultGatingParams(),
		TemporalScale:  1.0,
		Weights:        metrics.DefaultWeights(),
		Thresholds:     metrics.DefaultThresholds(),
	}
}

func rawFrame(sensorID string, w, h uint32, fill uint16) frame.RawDepthFrame {
	data := make([]uint16, w*h)
	for i := range data {
		data[i] = fill
	}
	return frame.RawDepthFrame{SensorID: sensorID, Width: w, Height: h, Data: data}
}

func TestParseSpecDefaultsOnEmpty(t *testing.T) {
	stages := ParseSpec("")
	if len(stages) != 4 {
		t.Fatalf("got %d stages, want 4 for default spec", len(stages))
	}
	if stages[0].Kind != KindBuild || stages[3].Kind != KindFusion {
		t.Errorf("unexpected stage order: %+v", stages)
	}
}

func TestParseSpecWithParamsAndArrowSeparator(t *testing.T) {
	stages := ParseSpec("build -> spatial(kernel=wide5) -> fusion")
	if len(stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(stages))
	}
	if stages[1].Kind != KindSpatial || stages[1].Params["kernel"] != "wide5" {
		t.Errorf("spatial stage params = %+v, want kernel=wide5", stages[1])
	}
}

func TestParseSpecUnknownStageKept(t *testing.T) {
	stages := ParseSpec("build,bogus,fusion")
	if stages[1].Kind != kindUnknown {
		t.Errorf("expected unknown stage to parse with kindUnknown, got %+v", stages[1])
	}
}

func TestSingleSensorPassthrough(t *testing.T) {
	opts := baseOptions(t)
	p := New(opts)

	p.BeginFrame(1, 1000, 2, 2)
	p.AddSensorFrame(rawFrame("s1", 2, 2, 500))
	wf, stats, _ := p.EndFrame()

	if wf.FrameID != 1 {
		t.Errorf("FrameID = %d, want 1", wf.FrameID)
	}
	if len(wf.HeightMap.Data) != 4 {
		t.Fatalf("HeightMap has %d cells, want 4", len(wf.HeightMap.Data))
	}
	for i, v := range wf.HeightMap.Data {
		if !frame.IsFinite(v) {
			t.Errorf("cell %d is non-finite, want a valid calibrated height", i)
		}
	}
	if stats.LayerCount != 1 {
		t.Errorf("LayerCount = %d, want 1", stats.LayerCount)
	}
}

func TestMultiSensorFusesLayers(t *testing.T) {
	opts := baseOptions(t)
	p := New(opts)

	p.BeginFrame(1, 1000, 2, 2)
	p.AddSensorFrame(rawFrame("s1", 2, 2, 500))
	p.AddSensorFrame(rawFrame("s2", 2, 2, 800))
	_, stats, _ := p.EndFrame()

	if stats.LayerCount != 2 {
		t.Errorf("LayerCount = %d, want 2", stats.LayerCount)
	}
}

func TestUnknownStageNameDoesNotPanic(t *testing.T) {
	opts := baseOptions(t)
	opts.Spec = "build,bogus,fusion"
	p := New(opts)

	p.BeginFrame(1, 0, 2, 2)
	p.AddSensorFrame(rawFrame("s1", 2, 2, 500))
	if _, _, _ = p.EndFrame(); false {
		t.Fatal("unreachable")
	}
}

func TestConfidenceMapDisabledLeavesContextEmpty(t *testing.T) {
	opts := baseOptions(t)
	opts.ConfidenceMapEnabled = false
	p := New(opts)

	p.BeginFrame(1, 0, 2, 2)
	p.AddSensorFrame(rawFrame("s1", 2, 2, 500))
	p.AddSensorFrame(rawFrame("s2", 2, 2, 800))
	p.EndFrame()

	if len(p.ctx.Confidence) != 0 {
		t.Errorf("Confidence = %v, want empty with ConfidenceMapEnabled=false", p.ctx.Confidence)
	}
}

func TestStabilityMetricsDisabledNeverLatchesAdaptiveState(t *testing.T) {
	opts := baseOptions(t)
	opts.StabilityMetricsEnabled = false
	p := New(opts)

	for frameID := uint64(1); frameID <= 10; frameID++ {
		p.BeginFrame(frameID, 0, 2, 2)
		p.AddSensorFrame(rawFrame("s1", 2, 2, uint16(100*frameID)))
		p.EndFrame()
	}

	if p.adaptive.SpatialActive() {
		t.Error("SpatialActive() = true, want false: StabilityMetricsEnabled=false must never run UpdateGating")
	}
}

func TestStrongDoublePassDisabledSkipsStrongPass(t *testing.T) {
	opts := baseOptions(t)
	opts.StrongDoublePass = false
	opts.StaticSpatialEnabled = true
	p := New(opts)

	// Strong second pass is skipped regardless of adaptive state when
	// StrongDoublePass is false; this just exercises the gated call path
	// without panicking or diverging from the spatial-only result.
	p.BeginFrame(1, 0, 3, 3)
	p.AddSensorFrame(rawFrame("s1", 3, 3, 500))
	wf, _, _ := p.EndFrame()
	if len(wf.HeightMap.Data) != 9 {
		t.Fatalf("HeightMap has %d cells, want 9", len(wf.HeightMap.Data))
	}
}

func TestFusionBeforeSpatialHonorsConfiguredOrder(t *testing.T) {
	opts := baseOptions(t)
	opts.Spec = "build,fusion,spatial"
	opts.StaticSpatialEnabled = true
	p := New(opts)

	p.BeginFrame(1, 0, 3, 3)
	p.AddSensorFrame(rawFrame("s1", 3, 3, 500))
	wf, _, _ := p.EndFrame()

	if len(wf.HeightMap.Data) != 9 {
		t.Fatalf("HeightMap has %d cells, want 9", len(wf.HeightMap.Data))
	}
}

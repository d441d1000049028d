/*
NAME
  main.go

DESCRIPTION
  Depthd is the depth-fusion daemon: it drives the pipeline from sensor
  input frames and publishes each fused frame to both the shared-memory
  and socket transports.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Depthd wires sensor input through the fusion pipeline and out to the
// shared-memory and socket transports. In the absence of real depth-sensor
// hardware it drives the pipeline with a synthetic generator standing in
// for the hardware abstraction layer; swapping in a real HAL only requires
// a different source for rawFrames.
package main

import (
	"flag"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/ausocean/depth/filter"
	"github.com/ausocean/depth/frame"
	"github.com/ausocean/depth/metrics"
	"github.com/ausocean/depth/pipeline"
	"github.com/ausocean/depth/pipeline/config"
	"github.com/ausocean/depth/transport/shm"
	"github.com/ausocean/depth/transport/socket"
	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logging related constants.
const (
	logPath      = "/var/log/depthd/depthd.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Debug
	logSuppress  = true
)

func main() {
	sensorCountPtr := flag.Int("sensors", 2, "Number of synthetic depth sensors to simulate.")
	widthPtr := flag.Int("width", 64, "Raw depth frame width, in cells.")
	heightPtr := flag.Int("height", 48, "Raw depth frame height, in cells.")
	fpsPtr := flag.Float64("fps", 10, "Frames per second to generate.")
	flag.Parse()

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	l := logging.New(logVerbosity, io.MultiWriter(fileLog), logSuppress)

	cfg := config.FromEnv(l)
	if cfg.ExportConfidence {
		// §4.7/§4.9's segment and frame layouts are byte-exact and carry
		// one float payload per slot; there is no channel to add a second
		// one without breaking the documented wire format, so this key
		// has no effect (see DESIGN.md).
		l.Warning("export confidence has no effect: the shared-memory and socket wire formats carry no confidence channel", "key", config.KeyExportConfidence)
	}

	p := pipeline.New(pipeline.Options{
		Logger:         l,
		Spec:           cfg.PipelineSpec,
		DepthScale:     cfg.DepthScale,
		Transform:      frame.TransformParameters{Min: cfg.CalibrationMin, Max: cfg.CalibrationMax},
		TemporalSigma:  filter.DefaultSigma,
		SpatialKernel:  parseSpatialKernelAlt(cfg.SpatialKernelAlt),
		DropoutWindow:  cfg.FusionDropoutWindow,
		AdaptiveParams: adaptiveParamsFromConfig(cfg),
		TemporalScale:  cfg.AdaptiveTemporalScale,
		Weights:        metricsWeights(cfg),
		Thresholds:     metricsThresholds(cfg),
		StrongKernel:   strongKernelFromConfig(cfg),

		StabilityMetricsEnabled: cfg.StabilityMetricsEnabled,
		StrongDoublePass:        cfg.StrongDoublePass,
		StaticSpatialEnabled:    cfg.SpatialFilterEnabled,
		ConfidenceMapEnabled:    cfg.ConfidenceMapEnabled,
	})

	shmPub, err := shm.New(cfg.SharedMemoryName, cfg.SharedMemoryCapacityW, cfg.SharedMemoryCapacityH,
		time.Duration(cfg.ChecksumIntervalMS)*time.Millisecond, l)
	if err != nil {
		l.Fatal("could not start shared-memory publisher", "error", err)
	}
	defer shmPub.Close()

	sockPub, err := socket.NewPublisher(cfg.SocketEndpoint,
		time.Duration(cfg.ChecksumIntervalMS)*time.Millisecond, l)
	if err != nil {
		l.Fatal("could not start socket publisher", "error", err)
	}
	defer sockPub.Close()

	run(p, shmPub, sockPub, l, *sensorCountPtr, uint32(*widthPtr), uint32(*heightPtr), *fpsPtr)
}

// run drives the pipeline at the configured frame rate, publishing each
// fused frame to both transports.
func run(p *pipeline.Pipeline, shmPub *shm.Publisher, sockPub *socket.Publisher, l logging.Logger,
	sensorCount int, width, height uint32, fps float64) {
	gen := newSyntheticSource(sensorCount, width, height)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	var frameID uint64
	for range ticker.C {
		frameID++
		now := uint64(time.Now().UnixNano())

		p.BeginFrame(frameID, now, width, height)
		for _, raw := range gen.next(frameID) {
			p.AddSensorFrame(raw)
		}
		wf, stats, m := p.EndFrame()

		if err := shmPub.Publish(wf.FrameID, wf.TimestampNS, wf.HeightMap.Width, wf.HeightMap.Height, wf.HeightMap.Data); err != nil {
			l.Warning("shared-memory publish failed", "error", err)
		}
		sockPub.Publish(wf.FrameID, wf.TimestampNS, wf.HeightMap.Width, wf.HeightMap.Height, wf.HeightMap.Data)

		l.Debug("published frame", "frameID", wf.FrameID, "fusedLayers", stats.LayerCount,
			"staleExcluded", stats.StaleExcludedCount, "avgVariance", m.AvgVariance, "stabilityRatio", m.StabilityRatio)
	}
}

// syntheticSource generates plausible raw depth frames for sensorCount
// sensors, standing in for the out-of-scope hardware abstraction layer.
type syntheticSource struct {
	sensorCount   int
	width, height uint32
	rng           *rand.Rand
}

func newSyntheticSource(sensorCount int, width, height uint32) *syntheticSource {
	return &syntheticSource{sensorCount: sensorCount, width: width, height: height, rng: rand.New(rand.NewSource(1))}
}

// next returns one raw depth frame per simulated sensor: a shallow dome
// shape with per-cell noise, in millimetres (matching the default
// DEPTH_SCALE of 0.001 metres/unit).
func (s *syntheticSource) next(frameID uint64) []frame.RawDepthFrame {
	frames := make([]frame.RawDepthFrame, 0, s.sensorCount)
	for sensor := 0; sensor < s.sensorCount; sensor++ {
		data := make([]uint16, s.width*s.height)
		cx, cy := float64(s.width)/2, float64(s.height)/2
		phase := float64(frameID) * 0.05
		for y := uint32(0); y < s.height; y++ {
			for x := uint32(0); x < s.width; x++ {
				dx, dy := float64(x)-cx, float64(y)-cy
				dist := math.Sqrt(dx*dx + dy*dy)
				base := 1500.0 + 200.0*math.Sin(phase+dist*0.1)
				noise := (s.rng.Float64() - 0.5) * 10
				data[y*s.width+x] = uint16(base + noise)
			}
		}
		frames = append(frames, frame.RawDepthFrame{
			SensorID:    sensorName(sensor),
			TimestampNS: uint64(time.Now().UnixNano()),
			Width:       s.width,
			Height:      s.height,
			Data:        data,
		})
	}
	return frames
}

func sensorName(i int) string {
	return "sensor-" + string(rune('a'+i))
}

func parseSpatialKernelAlt(name string) filter.SpatialKernel {
	return filter.ParseSpatialKernel(name)
}

func strongKernelFromConfig(cfg config.Config) filter.StrongKernel {
	return filter.ParseStrongKernel(cfg.StrongKernelChoice)
}

func adaptiveParamsFromConfig(cfg config.Config) metrics.GatingParams {
	return metrics.GatingParams{
		Mode:           cfg.AdaptiveMode,
		StabMin:        cfg.AdaptiveStabilityMin,
		VarMax:         cfg.AdaptiveVarianceMax,
		OnStreak:       cfg.OnStreak,
		OffStreak:      cfg.OffStreak,
		StrongVarMult:  cfg.StrongVarianceMultiplier,
		StrongStabFrac: cfg.StrongStabilityFraction,
	}
}

func metricsWeights(cfg config.Config) metrics.Weights {
	return metrics.Weights{
		Stability:       cfg.ConfidenceWeights[0],
		SpatialVariance: cfg.ConfidenceWeights[1],
		Temporal:        cfg.ConfidenceWeights[2],
	}
}

func metricsThresholds(cfg config.Config) metrics.Thresholds {
	return metrics.Thresholds{Low: cfg.ConfidenceLow, High: cfg.ConfidenceHigh}
}

/*
NAME
  config.go

DESCRIPTION
  config.go defines the pipeline's configuration surface and resolves it
  from environment variables, following the table-driven Variables
  pattern used for every configuration field.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config resolves the depth-fusion pipeline's configuration from
// a single environment-variable source, validating each field and
// substituting documented defaults for anything unset or malformed.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/ausocean/depth/frame"
	"github.com/ausocean/utils/logging"
)

// Config keys, used both as environment variable names and as Variables
// table entries.
const (
	KeyDepthScale               = "DEPTH_SCALE"
	KeyStabilityMetricsEnabled  = "STABILITY_METRICS_ENABLED"
	KeyAdaptiveMode             = "ADAPTIVE_MODE"
	KeyAdaptiveStabilityMin     = "ADAPTIVE_STABILITY_MIN"
	KeyAdaptiveVarianceMax      = "ADAPTIVE_VARIANCE_MAX"
	KeyOnStreak                 = "ON_STREAK"
	KeyOffStreak                = "OFF_STREAK"
	KeyStrongVarianceMultiplier = "STRONG_VARIANCE_MULTIPLIER"
	KeyStrongStabilityFraction  = "STRONG_STABILITY_FRACTION"
	KeyStrongDoublePass         = "STRONG_DOUBLE_PASS"
	KeyStrongKernelChoice       = "STRONG_KERNEL_CHOICE"
	KeyAdaptiveTemporalScale    = "ADAPTIVE_TEMPORAL_SCALE"
	KeyConfidenceMapEnabled     = "CONFIDENCE_MAP_ENABLED"
	KeyExportConfidence         = "EXPORT_CONFIDENCE"
	KeyConfidenceWeights        = "CONFIDENCE_WEIGHTS"
	KeyConfidenceThresholds     = "CONFIDENCE_THRESHOLDS"
	KeyFusionDropoutWindow      = "FUSION_DROPOUT_WINDOW"
	KeyCalibrationMinPlane      = "CALIBRATION_MIN_PLANE"
	KeyCalibrationMaxPlane      = "CALIBRATION_MAX_PLANE"
	KeyPipelineSpec             = "PIPELINE_SPEC"
	KeySpatialFilterEnabled     = "SPATIAL_FILTER_ENABLED"
	KeySpatialKernelAlt         = "SPATIAL_KERNEL_ALT"
	KeySharedMemoryName         = "SHARED_MEMORY_NAME"
	KeySharedMemoryCapacity     = "SHARED_MEMORY_CAPACITY"
	KeyChecksumIntervalMS       = "CHECKSUM_INTERVAL_MS"
	KeySocketEndpoint           = "SOCKET_ENDPOINT"
)

const (
	defaultDepthScale               = 0.001
	defaultAdaptiveMode             = 2
	defaultAdaptiveStabilityMin     = 0.85
	defaultAdaptiveVarianceMax      = 0.01
	defaultOnStreak                 = 2
	defaultOffStreak                = 3
	defaultStrongVarianceMultiplier = 3.0
	defaultStrongStabilityFraction  = 0.5
	defaultStrongKernelChoice       = "classic_double"
	defaultAdaptiveTemporalScale    = 1.0
	defaultFusionDropoutWindow      = 60
	defaultPipelineSpec             = ""
	defaultSpatialKernelAlt         = "classic"
	defaultSharedMemoryName         = "depthfusion"
	defaultSharedMemoryCapacityW    = 640
	defaultSharedMemoryCapacityH    = 480
	defaultChecksumIntervalMS       = 0
	defaultSocketEndpoint           = "unix:/tmp/depthfusion.sock"
)

// Config is the fully resolved, validated pipeline configuration.
type Config struct {
	Logger logging.Logger

	DepthScale float64

	StabilityMetricsEnabled  bool
	AdaptiveMode             int
	AdaptiveStabilityMin     float64
	AdaptiveVarianceMax      float64
	OnStreak                 int
	OffStreak                int
	StrongVarianceMultiplier float64
	StrongStabilityFraction  float64
	StrongDoublePass         bool
	StrongKernelChoice       string
	AdaptiveTemporalScale    float64

	ConfidenceMapEnabled bool
	ExportConfidence     bool
	ConfidenceWeights    [3]float64 // (wS, wR, wT)
	ConfidenceLow        float64
	ConfidenceHigh       float64

	FusionDropoutWindow uint64

	CalibrationMin frame.TransformPlane
	CalibrationMax frame.TransformPlane

	PipelineSpec         string
	SpatialFilterEnabled bool
	SpatialKernelAlt     string

	SharedMemoryName      string
	SharedMemoryCapacityW uint32
	SharedMemoryCapacityH uint32
	ChecksumIntervalMS    int
	SocketEndpoint        string
}

// LogInvalidField logs that a field was bad or unset and def was
// substituted, matching the teacher's Config.LogInvalidField.
func (c *Config) LogInvalidField(name string, def interface{}) {
	if c.Logger != nil {
		c.Logger.Info(name+" bad or unset, defaulting", name, def)
	}
}

// Variables is the table-driven resolver: each entry names a
// configuration key, how to parse it from a raw string, and how to
// validate/default the resulting field.
var Variables = []struct {
	Name     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyDepthScale,
		Update: func(c *Config, v string) { c.DepthScale = parseFloat(c, KeyDepthScale, v) },
		Validate: func(c *Config) {
			if c.DepthScale <= 0 {
				c.LogInvalidField(KeyDepthScale, defaultDepthScale)
				c.DepthScale = defaultDepthScale
			}
		},
	},
	{
		Name:   KeyStabilityMetricsEnabled,
		Update: func(c *Config, v string) { c.StabilityMetricsEnabled = parseBool(c, KeyStabilityMetricsEnabled, v) },
	},
	{
		Name:   KeyAdaptiveMode,
		Update: func(c *Config, v string) { c.AdaptiveMode = int(parseInt(c, KeyAdaptiveMode, v)) },
		Validate: func(c *Config) {
			switch c.AdaptiveMode {
			case 0, 2:
			default:
				c.LogInvalidField(KeyAdaptiveMode, defaultAdaptiveMode)
				c.AdaptiveMode = defaultAdaptiveMode
			}
		},
	},
	{
		Name:   KeyAdaptiveStabilityMin,
		Update: func(c *Config, v string) { c.AdaptiveStabilityMin = parseFloat(c, KeyAdaptiveStabilityMin, v) },
		Validate: func(c *Config) {
			if c.AdaptiveStabilityMin <= 0 || c.AdaptiveStabilityMin > 1 {
				c.LogInvalidField(KeyAdaptiveStabilityMin, defaultAdaptiveStabilityMin)
				c.AdaptiveStabilityMin = defaultAdaptiveStabilityMin
			}
		},
	},
	{
		Name:   KeyAdaptiveVarianceMax,
		Update: func(c *Config, v string) { c.AdaptiveVarianceMax = parseFloat(c, KeyAdaptiveVarianceMax, v) },
		Validate: func(c *Config) {
			if c.AdaptiveVarianceMax <= 0 {
				c.LogInvalidField(KeyAdaptiveVarianceMax, defaultAdaptiveVarianceMax)
				c.AdaptiveVarianceMax = defaultAdaptiveVarianceMax
			}
		},
	},
	{
		Name:   KeyOnStreak,
		Update: func(c *Config, v string) { c.OnStreak = int(parseInt(c, KeyOnStreak, v)) },
		Validate: func(c *Config) {
			if c.OnStreak <= 0 {
				c.LogInvalidField(KeyOnStreak, defaultOnStreak)
				c.OnStreak = defaultOnStreak
			}
		},
	},
	{
		Name:   KeyOffStreak,
		Update: func(c *Config, v string) { c.OffStreak = int(parseInt(c, KeyOffStreak, v)) },
		Validate: func(c *Config) {
			if c.OffStreak <= 0 {
				c.LogInvalidField(KeyOffStreak, defaultOffStreak)
				c.OffStreak = defaultOffStreak
			}
		},
	},
	{
		Name:   KeyStrongVarianceMultiplier,
		Update: func(c *Config, v string) { c.StrongVarianceMultiplier = parseFloat(c, KeyStrongVarianceMultiplier, v) },
		Validate: func(c *Config) {
			if c.StrongVarianceMultiplier <= 0 {
				c.LogInvalidField(KeyStrongVarianceMultiplier, defaultStrongVarianceMultiplier)
				c.StrongVarianceMultiplier = defaultStrongVarianceMultiplier
			}
		},
	},
	{
		Name:   KeyStrongStabilityFraction,
		Update: func(c *Config, v string) { c.StrongStabilityFraction = parseFloat(c, KeyStrongStabilityFraction, v) },
		Validate: func(c *Config) {
			if c.StrongStabilityFraction <= 0 || c.StrongStabilityFraction > 1 {
				c.LogInvalidField(KeyStrongStabilityFraction, defaultStrongStabilityFraction)
				c.StrongStabilityFraction = defaultStrongStabilityFraction
			}
		},
	},
	{
		Name:   KeyStrongDoublePass,
		Update: func(c *Config, v string) { c.StrongDoublePass = parseBool(c, KeyStrongDoublePass, v) },
	},
	{
		Name:   KeyStrongKernelChoice,
		Update: func(c *Config, v string) { c.StrongKernelChoice = v },
		Validate: func(c *Config) {
			switch c.StrongKernelChoice {
			case "classic_double", "wide5", "fastgauss":
			default:
				c.LogInvalidField(KeyStrongKernelChoice, defaultStrongKernelChoice)
				c.StrongKernelChoice = defaultStrongKernelChoice
			}
		},
	},
	{
		Name:   KeyAdaptiveTemporalScale,
		Update: func(c *Config, v string) { c.AdaptiveTemporalScale = parseFloat(c, KeyAdaptiveTemporalScale, v) },
		Validate: func(c *Config) {
			if c.AdaptiveTemporalScale <= 0 {
				c.LogInvalidField(KeyAdaptiveTemporalScale, defaultAdaptiveTemporalScale)
				c.AdaptiveTemporalScale = defaultAdaptiveTemporalScale
			}
		},
	},
	{
		Name:   KeyConfidenceMapEnabled,
		Update: func(c *Config, v string) { c.ConfidenceMapEnabled = parseBool(c, KeyConfidenceMapEnabled, v) },
	},
	{
		Name:   KeyExportConfidence,
		Update: func(c *Config, v string) { c.ExportConfidence = parseBool(c, KeyExportConfidence, v) },
	},
	{
		Name: KeyConfidenceWeights,
		Update: func(c *Config, v string) {
			parts := splitFloats(c, KeyConfidenceWeights, v, 3)
			if parts != nil {
				c.ConfidenceWeights = [3]float64{parts[0], parts[1], parts[2]}
			}
		},
		Validate: func(c *Config) {
			if c.ConfidenceWeights == ([3]float64{}) {
				c.LogInvalidField(KeyConfidenceWeights, [3]float64{0.5, 0.3, 0.2})
				c.ConfidenceWeights = [3]float64{0.5, 0.3, 0.2}
			}
		},
	},
	{
		Name: KeyConfidenceThresholds,
		Update: func(c *Config, v string) {
			parts := splitFloats(c, KeyConfidenceThresholds, v, 2)
			if parts != nil {
				c.ConfidenceLow, c.ConfidenceHigh = parts[0], parts[1]
			}
		},
		Validate: func(c *Config) {
			if c.ConfidenceLow <= 0 && c.ConfidenceHigh <= 0 {
				c.LogInvalidField(KeyConfidenceThresholds, "0.3/0.75")
				c.ConfidenceLow, c.ConfidenceHigh = 0.3, 0.75
			}
		},
	},
	{
		Name:   KeyFusionDropoutWindow,
		Update: func(c *Config, v string) { c.FusionDropoutWindow = uint64(parseInt(c, KeyFusionDropoutWindow, v)) },
		Validate: func(c *Config) {
			if c.FusionDropoutWindow == 0 {
				c.LogInvalidField(KeyFusionDropoutWindow, defaultFusionDropoutWindow)
				c.FusionDropoutWindow = defaultFusionDropoutWindow
			}
		},
	},
	{
		Name: KeyCalibrationMinPlane,
		Update: func(c *Config, v string) {
			if p, ok := parsePlane(c, KeyCalibrationMinPlane, v); ok {
				c.CalibrationMin = p
			}
		},
		Validate: func(c *Config) {
			if c.CalibrationMin == (frame.TransformPlane{}) {
				c.CalibrationMin = frame.TransformPlane{A: 0, B: 0, C: 1, D: 0}
			}
		},
	},
	{
		Name: KeyCalibrationMaxPlane,
		Update: func(c *Config, v string) {
			if p, ok := parsePlane(c, KeyCalibrationMaxPlane, v); ok {
				c.CalibrationMax = p
			}
		},
		Validate: func(c *Config) {
			if c.CalibrationMax == (frame.TransformPlane{}) {
				c.CalibrationMax = frame.TransformPlane{A: 0, B: 0, C: 1, D: -2}
			}
		},
	},
	{
		Name:   KeyPipelineSpec,
		Update: func(c *Config, v string) { c.PipelineSpec = v },
	},
	{
		Name:   KeySpatialFilterEnabled,
		Update: func(c *Config, v string) { c.SpatialFilterEnabled = parseBool(c, KeySpatialFilterEnabled, v) },
	},
	{
		Name:   KeySpatialKernelAlt,
		Update: func(c *Config, v string) { c.SpatialKernelAlt = v },
		Validate: func(c *Config) {
			switch c.SpatialKernelAlt {
			case "classic", "wide5":
			default:
				c.LogInvalidField(KeySpatialKernelAlt, defaultSpatialKernelAlt)
				c.SpatialKernelAlt = defaultSpatialKernelAlt
			}
		},
	},
	{
		Name:   KeySharedMemoryName,
		Update: func(c *Config, v string) { c.SharedMemoryName = v },
		Validate: func(c *Config) {
			if c.SharedMemoryName == "" {
				c.LogInvalidField(KeySharedMemoryName, defaultSharedMemoryName)
				c.SharedMemoryName = defaultSharedMemoryName
			}
		},
	},
	{
		Name: KeySharedMemoryCapacity,
		Update: func(c *Config, v string) {
			w, h, ok := parseDims(c, KeySharedMemoryCapacity, v)
			if ok {
				c.SharedMemoryCapacityW, c.SharedMemoryCapacityH = w, h
			}
		},
		Validate: func(c *Config) {
			if c.SharedMemoryCapacityW == 0 || c.SharedMemoryCapacityH == 0 {
				c.LogInvalidField(KeySharedMemoryCapacity, "640x480")
				c.SharedMemoryCapacityW, c.SharedMemoryCapacityH = defaultSharedMemoryCapacityW, defaultSharedMemoryCapacityH
			}
		},
	},
	{
		Name:   KeyChecksumIntervalMS,
		Update: func(c *Config, v string) { c.ChecksumIntervalMS = int(parseInt(c, KeyChecksumIntervalMS, v)) },
		Validate: func(c *Config) {
			if c.ChecksumIntervalMS < 0 {
				c.LogInvalidField(KeyChecksumIntervalMS, defaultChecksumIntervalMS)
				c.ChecksumIntervalMS = defaultChecksumIntervalMS
			}
		},
	},
	{
		Name:   KeySocketEndpoint,
		Update: func(c *Config, v string) { c.SocketEndpoint = v },
		Validate: func(c *Config) {
			if !strings.HasPrefix(c.SocketEndpoint, "unix:") {
				c.LogInvalidField(KeySocketEndpoint, defaultSocketEndpoint)
				c.SocketEndpoint = defaultSocketEndpoint
			}
		},
	},
}

// FromEnv resolves a Config from environment variables, collapsing what
// would otherwise be ad hoc os.Getenv calls scattered through the
// pipeline into a single resolver: every field comes from Variables, and
// every field that is unset or malformed gets its documented default via
// Validate.
func FromEnv(logger logging.Logger) Config {
	// Zero value disagrees with the documented default for these three,
	// so seed them before Update/Validate run rather than folding the
	// default into a Validate closure that can't tell "unset" from "set
	// to the zero value" (AdaptiveMode=0 and the two bools' false are
	// both legal explicit settings).
	c := Config{
		Logger:               logger,
		AdaptiveMode:         defaultAdaptiveMode,
		StrongDoublePass:     true,
		ConfidenceMapEnabled: true,
	}
	for _, v := range Variables {
		if val, ok := os.LookupEnv(v.Name); ok && v.Update != nil {
			v.Update(&c, val)
		}
	}
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(&c)
		}
	}
	return c
}

func parseFloat(c *Config, name, v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.Logger.Warning("invalid float config value", "name", name, "value", v)
		return 0
	}
	return f
}

func parseInt(c *Config, name, v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		c.Logger.Warning("invalid integer config value", "name", name, "value", v)
		return 0
	}
	return n
}

func parseBool(c *Config, name, v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.Logger.Warning("invalid bool config value", "name", name, "value", v)
		return false
	}
	return b
}

func splitFloats(c *Config, name, v string, n int) []float64 {
	parts := strings.Split(v, ",")
	if len(parts) != n {
		c.Logger.Warning("wrong arity for config value", "name", name, "value", v, "want", n)
		return nil
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			c.Logger.Warning("invalid float in config list", "name", name, "value", p)
			return nil
		}
		out[i] = f
	}
	return out
}

func parsePlane(c *Config, name, v string) (frame.TransformPlane, bool) {
	parts := splitFloats(c, name, v, 4)
	if parts == nil {
		return frame.TransformPlane{}, false
	}
	return frame.TransformPlane{A: parts[0], B: parts[1], C: parts[2], D: parts[3]}, true
}

func parseDims(c *Config, name, v string) (uint32, uint32, bool) {
	parts := strings.SplitN(v, "x", 2)
	if len(parts) != 2 {
		c.Logger.Warning("invalid WxH config value", "name", name, "value", v)
		return 0, 0, false
	}
	w, errW := strconv.ParseUint(parts[0], 10, 32)
	h, errH := strconv.ParseUint(parts[1], 10, 32)
	if errW != nil || errH != nil {
		c.Logger.Warning("invalid WxH config value", "name", name, "value", v)
		return 0, 0, false
	}
	return uint32(w), uint32(h), true
}

/*
NAME
  config_test.go

DESCRIPTION
  config_test.go tests the Config resolver's defaulting and validation.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import "testing"

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func TestFromEnvDefaultsWhenUnset(t *testing.T) {
	c := FromEnv(&dumbLogger{})

	if c.DepthScale != defaultDepthScale {
		t.Errorf("DepthScale = %v, want %v", c.DepthScale, defaultDepthScale)
	}
	if c.AdaptiveStabilityMin != defaultAdaptiveStabilityMin {
		t.Errorf("AdaptiveStabilityMin = %v, want %v", c.AdaptiveStabilityMin, defaultAdaptiveStabilityMin)
	}
	if c.OnStreak != defaultOnStreak || c.OffStreak != defaultOffStreak {
		t.Errorf("OnStreak/OffStreak = %d/%d, want %d/%d", c.OnStreak, c.OffStreak, defaultOnStreak, defaultOffStreak)
	}
	if c.StrongKernelChoice != defaultStrongKernelChoice {
		t.Errorf("StrongKernelChoice = %q, want %q", c.StrongKernelChoice, defaultStrongKernelChoice)
	}
	if c.SharedMemoryCapacityW != defaultSharedMemoryCapacityW || c.SharedMemoryCapacityH != defaultSharedMemoryCapacityH {
		t.Errorf("shared memory capacity = %dx%d, want %dx%d",
			c.SharedMemoryCapacityW, c.SharedMemoryCapacityH, defaultSharedMemoryCapacityW, defaultSharedMemoryCapacityH)
	}
	if c.SocketEndpoint != defaultSocketEndpoint {
		t.Errorf("SocketEndpoint = %q, want %q", c.SocketEndpoint, defaultSocketEndpoint)
	}
	if c.ConfidenceWeights != ([3]float64{0.5, 0.3, 0.2}) {
		t.Errorf("ConfidenceWeights = %v, want [0.5 0.3 0.2]", c.ConfidenceWeights)
	}
	if c.AdaptiveMode != defaultAdaptiveMode {
		t.Errorf("AdaptiveMode = %d, want %d", c.AdaptiveMode, defaultAdaptiveMode)
	}
	if !c.StrongDoublePass {
		t.Error("StrongDoublePass = false, want true (documented default)")
	}
	if !c.ConfidenceMapEnabled {
		t.Error("ConfidenceMapEnabled = false, want true (documented default)")
	}
	if c.StabilityMetricsEnabled {
		t.Error("StabilityMetricsEnabled = true, want false (documented default)")
	}
	if c.ExportConfidence {
		t.Error("ExportConfidence = true, want false (documented default)")
	}
	if c.SpatialFilterEnabled {
		t.Error("SpatialFilterEnabled = true, want false (documented default)")
	}
}

func TestFromEnvTogglesOverrideDefaults(t *testing.T) {
	t.Setenv(KeyAdaptiveMode, "0")
	t.Setenv(KeyStrongDoublePass, "false")
	t.Setenv(KeyConfidenceMapEnabled, "false")
	t.Setenv(KeyStabilityMetricsEnabled, "true")

	c := FromEnv(&dumbLogger{})
	if c.AdaptiveMode != 0 {
		t.Errorf("AdaptiveMode = %d, want 0 (explicitly disabled)", c.AdaptiveMode)
	}
	if c.StrongDoublePass {
		t.Error("StrongDoublePass = true, want false (explicitly disabled)")
	}
	if c.ConfidenceMapEnabled {
		t.Error("ConfidenceMapEnabled = true, want false (explicitly disabled)")
	}
	if !c.StabilityMetricsEnabled {
		t.Error("StabilityMetricsEnabled = false, want true (explicitly enabled)")
	}
}

func TestFromEnvRejectsOutOfRangeAdaptiveMode(t *testing.T) {
	t.Setenv(KeyAdaptiveMode, "7")
	c := FromEnv(&dumbLogger{})
	if c.AdaptiveMode != defaultAdaptiveMode {
		t.Errorf("AdaptiveMode = %d, want default %d for an unrecognized mode", c.AdaptiveMode, defaultAdaptiveMode)
	}
}

func TestFromEnvRejectsOutOfRangeSocketEndpoint(t *testing.T) {
	t.Setenv(KeySocketEndpoint, "tcp:127.0.0.1:9999")
	c := FromEnv(&dumbLogger{})
	if c.SocketEndpoint != defaultSocketEndpoint {
		t.Errorf("SocketEndpoint = %q, want default %q for a non-unix scheme", c.SocketEndpoint, defaultSocketEndpoint)
	}
}

func TestFromEnvParsesValidOverrides(t *testing.T) {
	t.Setenv(KeyDepthScale, "0.01")
	t.Setenv(KeyOnStreak, "5")
	t.Setenv(KeySharedMemoryCapacity, "320x240")

	c := FromEnv(&dumbLogger{})
	if c.DepthScale != 0.01 {
		t.Errorf("DepthScale = %v, want 0.01", c.DepthScale)
	}
	if c.OnStreak != 5 {
		t.Errorf("OnStreak = %d, want 5", c.OnStreak)
	}
	if c.SharedMemoryCapacityW != 320 || c.SharedMemoryCapacityH != 240 {
		t.Errorf("shared memory capacity = %dx%d, want 320x240", c.SharedMemoryCapacityW, c.SharedMemoryCapacityH)
	}
}

func TestFromEnvRejectsOutOfRangeStabilityMin(t *testing.T) {
	t.Setenv(KeyAdaptiveStabilityMin, "1.5")
	c := FromEnv(&dumbLogger{})
	if c.AdaptiveStabilityMin != defaultAdaptiveStabilityMin {
		t.Errorf("AdaptiveStabilityMin = %v, want default %v for an out-of-range value", c.AdaptiveStabilityMin, defaultAdaptiveStabilityMin)
	}
}

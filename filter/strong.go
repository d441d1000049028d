/*
NAME
  strong.go

DESCRIPTION
  strong.go implements the optional second smoothing pass triggered under
  strong adaptive conditions (see the metrics package for the gating
  decision).

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package filter

// StrongPass applies a second smoothing pass to data according to choice:
// classic_double repeats the classic kernel, wide5 applies the wide kernel,
// and fastgauss re-applies a FastGaussian pass at the given sigma.
func StrongPass(choice StrongKernel, data []float32, width, height int, sigma float64, scratch *[]float32) {
	switch choice {
	case StrongWide5:
		applyKernel(KernelWide5, data, width, height, scratch)
	case StrongFastGauss:
		NewFastGaussian(sigma).Apply(data, width, height)
	default: // StrongClassicDouble
		applyKernel(KernelClassic, data, width, height, scratch)
	}
}

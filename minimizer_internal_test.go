// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// noHessianProblem implements only Value/Gradient, so the Newton strategy's
// direction call always falls through to QuasiNewton (the HessianProblem
// type assertion fails), letting this test observe the ladder settle on a
// non-default strategy and then be pulled back by an explicit Reset.
type noHessianProblem struct {
	diag []float64
}

func (p noHessianProblem) Value(x []float64) float64 {
	var f float64
	for i, xi := range x {
		f += 0.5 * p.diag[i] * xi * xi
	}
	return f
}

func (p noHessianProblem) Gradient(x, grad []float64) {
	for i, xi := range x {
		grad[i] = p.diag[i] * xi
	}
}

// TestStrategyResetsToDefaultOnReset: with DefaultStrategy Newton and a
// problem that never advertises a Hessian, the ladder is forced onto
// QuasiNewton on its very first direction call and stays there (the
// fallback period of 100 is never reached in one iteration); Reset (also
// called at the start of every Minimize) must bring it back to the
// configured default.
func TestStrategyResetsToDefaultOnReset(t *testing.T) {
	n := 4
	prob := noHessianProblem{diag: []float64{1, 2, 3, 4}}
	x := []float64{1, 1, 1, 1}

	m, err := NewMinimizer(Config{
		GradNorm:                      1e-12,
		MaxIterations:                 1,
		FallbackDescentStrategyPeriod: 100,
		DefaultStrategy:               StrategyNewton,
	})
	require.NoError(t, err)

	_, _ = m.Minimize(prob, &x)
	require.Equal(t, StrategyQuasiNewton, m.ladder.current)

	m.Reset()
	require.Equal(t, StrategyNewton, m.ladder.current)
	require.Equal(t, StrategyNewton, m.ladder.def)
}

// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/shapeopt/nlmin/sparselinsolve"
)

func TestDescentStrategyMonotonicBetweenResets(t *testing.T) {
	solver, err := sparselinsolve.New("cholesky", "")
	require.NoError(t, err)
	ladder := newDescentLadder(solver, 10)

	require.Equal(t, StrategyNewton, ladder.current)
	ladder.escalate()
	require.Equal(t, StrategyQuasiNewton, ladder.current)
	ladder.escalate()
	require.Equal(t, StrategyGradientDescent, ladder.current)
	// Escalation caps at GradientDescent.
	ladder.escalate()
	require.Equal(t, StrategyGradientDescent, ladder.current)

	ladder.resetToDefault()
	require.Equal(t, StrategyNewton, ladder.current)
}

func TestFactorizeReuseCadence(t *testing.T) {
	solver, err := sparselinsolve.New("cholesky", "")
	require.NoError(t, err)
	ladder := newDescentLadder(solver, 10)

	n := 3
	prob := newQuadraticProblemInternal(n)
	x := make([]float64, n)
	grad := make([]float64, n)
	dir := make([]float64, n)

	const iterations = 23
	for i := 0; i < iterations; i++ {
		prob.Gradient(x, grad)
		ok := ladder.direction(prob, x, grad, dir)
		require.True(t, ok)
		for j := range x {
			x[j] += dir[j] * 0.01
		}
	}

	wantFactorizations := (iterations + newtonCadence - 1) / newtonCadence
	require.Equal(t, wantFactorizations, ladder.factorizeCnt)
}

func TestIsDescentAcceptsZeroGradient(t *testing.T) {
	require.True(t, isDescent([]float64{1, 2, 3}, []float64{0, 0, 0}))
	require.True(t, isDescent([]float64{-1, -1}, []float64{1, 1}))
	require.False(t, isDescent([]float64{1, 1}, []float64{1, 1}))
}

// quadraticProblemInternal mirrors the external test's quadraticProblem, kept
// unexported here to avoid an import cycle with the nlmin_test package.
type quadraticProblemInternal struct {
	diag []float64
}

func newQuadraticProblemInternal(n int) *quadraticProblemInternal {
	diag := make([]float64, n)
	for i := range diag {
		diag[i] = float64(i + 1)
	}
	return &quadraticProblemInternal{diag: diag}
}

func (p *quadraticProblemInternal) Value(x []float64) float64 {
	var f float64
	for i, xi := range x {
		f += 0.5 * p.diag[i] * xi * xi
	}
	return f
}

func (p *quadraticProblemInternal) Gradient(x, grad []float64) {
	for i, xi := range x {
		grad[i] = p.diag[i] * xi
	}
}

func (p *quadraticProblemInternal) Hessian(x []float64, hess *mat.SymDense) {
	n := len(p.diag)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				hess.SetSym(i, i, p.diag[i])
			} else {
				hess.SetSym(i, j, 0)
			}
		}
	}
}

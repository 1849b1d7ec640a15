// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/shapeopt/nlmin"
)

// quadraticProblem implements f(x) = 1/2 xᵀAx - bᵀx for a diagonal SPD A,
// exercised as the convex seed scenario (§8 scenario 1).
type quadraticProblem struct {
	diag []float64
	b    []float64
}

func newQuadraticProblem(n int) *quadraticProblem {
	diag := make([]float64, n)
	b := make([]float64, n)
	for i := range diag {
		diag[i] = float64(i + 1)
		b[i] = float64(i % 7)
	}
	return &quadraticProblem{diag: diag, b: b}
}

func (p *quadraticProblem) Value(x []float64) float64 {
	var f float64
	for i, xi := range x {
		f += 0.5*p.diag[i]*xi*xi - p.b[i]*xi
	}
	return f
}

func (p *quadraticProblem) Gradient(x, grad []float64) {
	for i, xi := range x {
		grad[i] = p.diag[i]*xi - p.b[i]
	}
}

func (p *quadraticProblem) Hessian(x []float64, hess *mat.SymDense) {
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

func TestMinimizeConvexQuadratic(t *testing.T) {
	n := 100
	prob := newQuadraticProblem(n)
	x := make([]float64, n)

	m, err := nlmin.NewMinimizer(nlmin.Config{
		GradNorm:      1e-7,
		MaxIterations: 50,
	})
	require.NoError(t, err)

	info, err := m.Minimize(prob, &x)
	require.NoError(t, err)
	require.Equal(t, nlmin.ConvergedGradNorm, info.Status)

	for i := range x {
		want := prob.b[i] / prob.diag[i]
		require.InDelta(t, want, x[i], 1e-6)
	}
}

// rosenbrockProblem is the classical Rosenbrock banana function in 2D.
type rosenbrockProblem struct{}

func (rosenbrockProblem) Value(x []float64) float64 {
	a := 1 - x[0]
	b := x[1] - x[0]*x[0]
	return a*a + 100*b*b
}

func (rosenbrockProblem) Gradient(x, grad []float64) {
	a := 1 - x[0]
	b := x[1] - x[0]*x[0]
	grad[0] = -2*a - 400*x[0]*b
	grad[1] = 200 * b
}

func TestMinimizeRosenbrock(t *testing.T) {
	prob := rosenbrockProblem{}
	x := []float64{-1.2, 1.0}

	m, err := nlmin.NewMinimizer(nlmin.Config{
		GradNorm:      1e-7,
		MaxIterations: 500,
	})
	require.NoError(t, err)

	info, err := m.Minimize(prob, &x)
	require.NoError(t, err)
	require.True(t, info.Status.Converged())
	require.InDelta(t, 1.0, x[0], 1e-3)
	require.InDelta(t, 1.0, x[1], 1e-3)
}

// nanProblem always reports a NaN objective, exercising NaN propagation.
type nanProblem struct{}

func (nanProblem) Value(x []float64) float64       { return math.NaN() }
func (nanProblem) Gradient(x, grad []float64) { for i := range grad { grad[i] = 1 } }

func TestMinimizeNaNPropagation(t *testing.T) {
	x := []float64{0, 0}
	m, err := nlmin.NewMinimizer(nlmin.Config{MaxIterations: 10})
	require.NoError(t, err)

	_, err = m.Minimize(nanProblem{}, &x)
	require.Error(t, err)
	st, code := m.Status()
	require.Equal(t, nlmin.NaNEncountered, st)
	require.Equal(t, nlmin.NaNEncounteredError, code)
}

// alreadyOptimalProblem reports a tiny gradient at the initial point, to
// exercise the idempotent early-exit invariant.
type alreadyOptimalProblem struct{}

func (alreadyOptimalProblem) Value(x []float64) float64 { return 0 }
func (alreadyOptimalProblem) Gradient(x, grad []float64) {
	for i := range grad {
		grad[i] = 1e-12
	}
}

func TestMinimizeIdempotentEarlyExit(t *testing.T) {
	x := []float64{1.23, -4.56}
	x0 := append([]float64(nil), x...)

	m, err := nlmin.NewMinimizer(nlmin.Config{
		FirstGradNormTol: 1e-6,
		MaxIterations:    10,
	})
	require.NoError(t, err)

	info, err := m.Minimize(alreadyOptimalProblem{}, &x)
	require.NoError(t, err)
	require.Equal(t, nlmin.ConvergedGradNorm, info.Status)
	require.Equal(t, x0, x)
	require.Equal(t, 0, info.Iterations)
}

// rankDeficientProblem reports a singular Hessian at the origin, exercising
// the Newton -> QuasiNewton -> GradientDescent escalation.
type rankDeficientProblem struct {
	quadraticProblem
}

func newRankDeficientProblem(n int) *rankDeficientProblem {
	p := &rankDeficientProblem{*newQuadraticProblem(n)}
	return p
}

func (p *rankDeficientProblem) Hessian(x []float64, hess *mat.SymDense) {
	n := len(p.diag)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			hess.SetSym(i, j, 0)
		}
	}
	// Force indefiniteness so Cholesky fails even after the eps*I
	// regularization, exercising the singular-factorization escalation.
	hess.SetSym(0, 0, -10)
}

func TestMinimizeRankDeficientHessianEscalates(t *testing.T) {
	n := 10
	prob := newRankDeficientProblem(n)
	x := make([]float64, n)

	m, err := nlmin.NewMinimizer(nlmin.Config{
		GradNorm:      1e-6,
		MaxIterations: 2000,
	})
	require.NoError(t, err)

	info, err := m.Minimize(prob, &x)
	require.NoError(t, err)
	require.True(t, info.Status.Converged())
}

// quarticPenaltyProblem is a convex, separable quartic penalty. Paired with a
// three-iteration budget and a 1e-12 gradient threshold it exercises
// scenario 5's documented failure mode: a run that terminates on
// IterationLimit after the energy has decreased.
type quarticPenaltyProblem struct {
	target, weight []float64
}

func newQuarticPenaltyProblem(n int) *quarticPenaltyProblem {
	target := make([]float64, n)
	weight := make([]float64, n)
	for i := range target {
		target[i] = 0.3 + 0.1*float64((i%5))
		weight[i] = 1 + float64(i%5)
	}
	return &quarticPenaltyProblem{target: target, weight: weight}
}

func (p *quarticPenaltyProblem) Value(x []float64) float64 {
	var f float64
	for i, xi := range x {
		d := xi - p.target[i]
		f += p.weight[i] * (0.5*d*d + 0.05*d*d*d*d)
	}
	return f
}

func (p *quarticPenaltyProblem) Gradient(x, grad []float64) {
	for i, xi := range x {
		d := xi - p.target[i]
		grad[i] = p.weight[i] * (d + 0.2*d*d*d)
	}
}

func TestMinimizeTerminatesOnIterationLimitWithLargeDecrease(t *testing.T) {
	n := 40
	prob := newQuarticPenaltyProblem(n)
	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0
	}
	f0 := prob.Value(x)

	m, err := nlmin.NewMinimizer(nlmin.Config{
		GradNorm:      1e-12,
		MaxIterations: 3,
	})
	require.NoError(t, err)

	info, err := m.Minimize(prob, &x)
	require.Error(t, err)
	require.Equal(t, nlmin.IterationLimit, info.Status)
	require.False(t, info.Status.Converged())
	_, code := m.Status()
	require.Equal(t, nlmin.IterationLimitExceeded, code)

	f1 := prob.Value(x)
	require.Less(t, f1, f0)
}


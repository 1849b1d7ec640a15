// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/shapeopt/nlmin"
)

// goldenQuadraticInfo is the expected shape of the convex-quadratic seed
// scenario's SolverInfo: status, error code, relative-gradient flag and
// line-search method. Timing and peak-memory fields, the iteration count and
// criteria scalars, and the internal-solver records are ignored.
var goldenQuadraticInfo = nlmin.SolverInfo{
	Status:           nlmin.ConvergedGradNorm,
	ErrorCode:        nlmin.Success,
	RelativeGradient: false,
	LineSearchMethod: "",
}

func TestQuadraticScenarioMatchesGoldenSolverInfo(t *testing.T) {
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

	opts := []cmp.Option{
		cmpopts.IgnoreFields(nlmin.SolverInfo{},
			"Iterations", "XDelta", "FDelta", "GradNorm", "Condition",
			"PeakMemoryBytes", "TotalTime",
			"TimeGrad", "TimeAssembly", "TimeInverting", "TimeLineSearch",
			"TimeConstraintSetUpdate", "TimeObjFun",
			"LineSearchIterations", "TimeCheckingForNaNInf", "TimeBroadPhaseCCD",
			"TimeCCD", "TimeClassicalLineSearch", "TimeLineSearchConstraintSetUpdate",
			"InternalSolver", "InternalSolverFirst",
		),
	}
	if diff := cmp.Diff(goldenQuadraticInfo, info, opts...); diff != "" {
		t.Errorf("SolverInfo mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceRecorderParsesEmittedRows(t *testing.T) {
	n := 20
	prob := newQuadraticProblem(n)
	x := make([]float64, n)

	rec := newTraceRecorder()
	m, err := nlmin.NewMinimizer(nlmin.Config{
		GradNorm:          1e-7,
		MaxIterations:     50,
		EnergyTraceWriter: rec,
	})
	require.NoError(t, err)

	_, err = m.Minimize(prob, &x)
	require.NoError(t, err)

	rows := rec.rows()
	require.NotEmpty(t, rows)
	require.True(t, rows[0].energy >= rows[len(rows)-1].energy)
}

func TestRemeshScenarioCarriesCoordinatesForward(t *testing.T) {
	prob := newRemeshProblem(10, 2, 3)
	x := make([]float64, 10)

	m, err := nlmin.NewMinimizer(nlmin.Config{
		GradNorm:      1e-7,
		MaxIterations: 200,
	})
	require.NoError(t, err)

	info, err := m.Minimize(prob, &x)
	require.NoError(t, err)
	require.True(t, info.Status.Converged())
	require.Len(t, x, 13)
}

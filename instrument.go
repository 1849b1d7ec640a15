// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import (
	"runtime"
	"time"
)

// phase names the seven timed phases reported in the solver-info record.
type phase int

const (
	phaseTotal phase = iota
	phaseGrad
	phaseAssembly
	phaseInverting
	phaseLineSearch
	phaseObjFun
	phaseConstraintSetUpdate
	numPhases
)

// timers accumulates monotone non-decreasing per-phase durations across one
// solve, plus the counts needed to average them per accepted iteration.
type timers struct {
	total [numPhases]time.Duration
}

// scopedTimer accumulates elapsed wall-clock time into its owning phase slot
// on every exit path, the way a RAII timer guarantees accumulation even on
// an early return.
type scopedTimer struct {
	t     *timers
	p     phase
	start time.Time
}

func (t *timers) start(p phase) scopedTimer {
	return scopedTimer{t: t, p: p, start: time.Now()}
}

// stop must be called (typically via defer) to flush the elapsed time.
func (s scopedTimer) stop() {
	s.t.total[s.p] += time.Since(s.start)
}

// SolverInfo is the outbound diagnostic record accumulated across a solve,
// matching the keyed record described in §6.
type SolverInfo struct {
	Status     Status
	ErrorCode  ErrorCode
	Iterations int

	XDelta            float64
	FDelta            float64
	GradNorm          float64
	Condition         float64
	RelativeGradient  bool

	PeakMemoryBytes uint64
	TotalTime       time.Duration

	TimeGrad                   time.Duration
	TimeAssembly                time.Duration
	TimeInverting                time.Duration
	TimeLineSearch               time.Duration
	TimeConstraintSetUpdate      time.Duration
	TimeObjFun                   time.Duration

	LineSearchIterations int
	TimeCheckingForNaNInf       time.Duration
	TimeBroadPhaseCCD           time.Duration
	TimeCCD                     time.Duration
	TimeClassicalLineSearch     time.Duration
	TimeLineSearchConstraintSetUpdate time.Duration

	LineSearchMethod string
	InternalSolver      []sparselinsolveInfo
	InternalSolverFirst sparselinsolveInfo
}

// sparselinsolveInfo is a value-copy mirror of sparselinsolve.Info, kept
// free of that package's import so SolverInfo stays a plain data record.
type sparselinsolveInfo struct {
	Name       string
	Iterations int
	ResidNorm  float64
}

// buildSolverInfo finalizes the solver-info record from the accumulated
// timers, averaging every phase but total over the number of accepted
// iterations. PeakMemoryBytes is runtime.MemStats.Sys (bytes the Go runtime
// has obtained from the OS), not the process's peak resident set size.
func buildSolverInfo(t *timers, crit Criteria, status Status, code ErrorCode, relGrad bool, lsIters int, lsTimes lineSearchTimes, lsMethod string, internalSolver []sparselinsolveInfo) SolverInfo {
	n := crit.Iterations
	avg := func(d time.Duration) time.Duration {
		if n <= 0 {
			return d
		}
		return d / time.Duration(n)
	}

	var peak uint64
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	peak = ms.Sys

	info := SolverInfo{
		Status:           status,
		ErrorCode:        code,
		Iterations:       crit.Iterations,
		XDelta:           crit.XDelta,
		FDelta:           crit.FDelta,
		GradNorm:         crit.GradNorm,
		Condition:        crit.Condition,
		RelativeGradient: relGrad,

		PeakMemoryBytes: peak,
		TotalTime:       t.total[phaseTotal],

		TimeGrad:                avg(t.total[phaseGrad]),
		TimeAssembly:             avg(t.total[phaseAssembly]),
		TimeInverting:            avg(t.total[phaseInverting]),
		TimeLineSearch:           avg(t.total[phaseLineSearch]),
		TimeConstraintSetUpdate:  avg(t.total[phaseConstraintSetUpdate]),
		TimeObjFun:               avg(t.total[phaseObjFun]),

		LineSearchIterations:              lsIters,
		TimeCheckingForNaNInf:             avg(lsTimes.checkingForNaNInf),
		TimeBroadPhaseCCD:                 avg(lsTimes.broadPhaseCCD),
		TimeCCD:                           avg(lsTimes.ccd),
		TimeClassicalLineSearch:           avg(lsTimes.classicalLineSearch),
		TimeLineSearchConstraintSetUpdate: avg(lsTimes.constraintSetUpdate),

		LineSearchMethod:    lsMethod,
		InternalSolver:      internalSolver,
	}
	if len(internalSolver) > 0 {
		info.InternalSolverFirst = internalSolver[0]
	}
	return info
}

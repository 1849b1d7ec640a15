// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

// Status classifies why a solve stopped.
type Status int

const (
	// Continue indicates the solve has not yet met any stopping criterion.
	Continue Status = iota
	ConvergedGradNorm
	ConvergedXDelta
	ConvergedFDelta
	IterationLimit
	UserDefined
	NaNEncountered
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "Continue"
	case ConvergedGradNorm:
		return "ConvergedGradNorm"
	case ConvergedXDelta:
		return "ConvergedXDelta"
	case ConvergedFDelta:
		return "ConvergedFDelta"
	case IterationLimit:
		return "IterationLimit"
	case UserDefined:
		return "UserDefined"
	case NaNEncountered:
		return "NaNEncountered"
	default:
		return "Status(unknown)"
	}
}

// Converged reports whether s corresponds to a successful termination rather
// than a fatal or budget-exhausted one.
func (s Status) Converged() bool {
	switch s {
	case ConvergedGradNorm, ConvergedXDelta, ConvergedFDelta:
		return true
	default:
		return false
	}
}

// ErrorCode refines a terminal Status with the specific failure mode that
// produced it.
type ErrorCode int

const (
	Success ErrorCode = iota
	NaNEncounteredError
	StepTooSmall
	LineSearchFailed
	SaddlePointError

	// IterationLimitExceeded refines a Status of IterationLimit. §7
	// documents that outcome as "surfaced as error to the caller (not
	// success)"; without a dedicated code it would otherwise report the
	// same zero-value ErrorCode a genuinely converged solve does.
	IterationLimitExceeded
)

func (e ErrorCode) String() string {
	switch e {
	case Success:
		return "Success"
	case NaNEncounteredError:
		return "NaNEncountered"
	case StepTooSmall:
		return "StepTooSmall"
	case LineSearchFailed:
		return "LineSearchFailed"
	case SaddlePointError:
		return "SaddlePoint"
	case IterationLimitExceeded:
		return "IterationLimitExceeded"
	default:
		return "ErrorCode(unknown)"
	}
}

// SolveError carries the single-channel fatal error report described by the
// error handling design: a status, the refining error code, and a message.
type SolveError struct {
	Status  Status
	Code    ErrorCode
	Message string
}

func (e *SolveError) Error() string {
	if e.Message == "" {
		return e.Status.String() + ": " + e.Code.String()
	}
	return e.Status.String() + ": " + e.Code.String() + ": " + e.Message
}

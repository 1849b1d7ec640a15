// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import (
	"gonum.org/v1/gonum/mat"

	lvmatrix "github.com/katalvlaran/lvlath/matrix"
	lvops "github.com/katalvlaran/lvlath/matrix/ops"
)

// saddlePointEigenTol and saddlePointMaxIter bound the Jacobi eigenvalue
// sweep used to probe curvature at termination.
const (
	saddlePointEigenTol  = 1e-9
	saddlePointMaxIter   = 100
	saddleNegativeEigTol = -1e-8
)

// isSaddlePoint probes curvature at x by computing the eigenvalues of the
// (dense) Hessian and flags a saddle point when the smallest eigenvalue is
// sufficiently negative while the gradient is already small. It reuses
// lvlath's Jacobi eigensolver rather than hand-rolling one.
func isSaddlePoint(hess *mat.SymDense, gradNorm, gradTol float64) (bool, error) {
	if gradNorm > gradTol {
		return false, nil
	}
	n := hess.SymmetricDim()
	m, err := lvmatrix.NewDense(n, n)
	if err != nil {
		return false, err
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if err := m.Set(i, j, hess.At(i, j)); err != nil {
				return false, err
			}
		}
	}

	eigenvalues, _, err := lvops.Eigen(m, saddlePointEigenTol, saddlePointMaxIter)
	if err != nil {
		return false, err
	}

	minEig := eigenvalues[0]
	for _, v := range eigenvalues[1:] {
		if v < minEig {
			minEig = v
		}
	}
	return minEig < saddleNegativeEigTol, nil
}

// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

// lbfgsPair is one (s_k, y_k) correction pair in the bounded L-BFGS history.
type lbfgsPair struct {
	s, y []float64
	rho  float64 // 1 / (y·s)
}

// lbfgsHistory is a bounded ring of correction pairs used to form an implicit
// inverse-Hessian-vector product via the standard two-loop recursion. It is
// owned exclusively by the QuasiNewton strategy and cleared on reset/remesh.
type lbfgsHistory struct {
	pairs []lbfgsPair
	limit int
}

func newLBFGSHistory(limit int) *lbfgsHistory {
	if limit <= 0 {
		limit = 10
	}
	return &lbfgsHistory{limit: limit}
}

func (h *lbfgsHistory) clear() {
	h.pairs = h.pairs[:0]
}

func (h *lbfgsHistory) push(s, y []float64, sDotY float64) {
	if sDotY <= 0 {
		// Curvature condition violated; skip the update rather than
		// poisoning the inverse-Hessian approximation.
		return
	}
	pair := lbfgsPair{
		s:   append([]float64(nil), s...),
		y:   append([]float64(nil), y...),
		rho: 1 / sDotY,
	}
	if len(h.pairs) >= h.limit {
		h.pairs = h.pairs[1:]
	}
	h.pairs = append(h.pairs, pair)
}

// direction computes -H_k ∇f via the two-loop recursion, writing the result
// into dir. With no history it falls back to steepest descent.
func (h *lbfgsHistory) direction(grad, dir []float64) {
	n := len(grad)
	q := make([]float64, n)
	copy(q, grad)

	m := len(h.pairs)
	alpha := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		p := h.pairs[i]
		var sq float64
		for j := 0; j < n; j++ {
			sq += p.s[j] * q[j]
		}
		alpha[i] = p.rho * sq
		for j := 0; j < n; j++ {
			q[j] -= alpha[i] * p.y[j]
		}
	}

	gamma := 1.0
	if m > 0 {
		last := h.pairs[m-1]
		var sy, yy float64
		for j := 0; j < n; j++ {
			sy += last.s[j] * last.y[j]
			yy += last.y[j] * last.y[j]
		}
		if yy > 0 {
			gamma = sy / yy
		}
	}
	for j := 0; j < n; j++ {
		dir[j] = gamma * q[j]
	}

	for i := 0; i < m; i++ {
		p := h.pairs[i]
		var yr float64
		for j := 0; j < n; j++ {
			yr += p.y[j] * dir[j]
		}
		beta := p.rho * yr
		coef := alpha[i] - beta
		for j := 0; j < n; j++ {
			dir[j] += coef * p.s[j]
		}
	}

	for j := 0; j < n; j++ {
		dir[j] = -dir[j]
	}
}

package lpsolve

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultTolerance is the reduced-cost tolerance passed to the simplex.
const DefaultTolerance = 1e-10

// Simplex solves problems with gonum's dense simplex implementation.
type Simplex struct {
	Tol float64
}

// Solve converts p to standard form (equalities, x >= 0) by adding one slack
// column per inequality row and per finite upper bound.
func (s Simplex) Solve(p *Problem) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	tol := s.Tol
	if tol <= 0 {
		tol = DefaultTolerance
	}

	n := len(p.Objective)
	me, mi := rows(p.Eq), rows(p.Ineq)
	var bounded []int
	for j, u := range p.Upper {
		if !math.IsInf(u, 1) {
			bounded = append(bounded, j)
		}
	}
	mu := len(bounded)
	m, cols := me+mi+mu, n+mi+mu
	if m == 0 {
		return nil, errors.New("lp: no constraints")
	}

	A := mat.NewDense(m, cols, nil)
	b := make([]float64, m)
	for r := 0; r < me; r++ {
		for j := 0; j < n; j++ {
			A.Set(r, j, p.Eq.A.At(r, j))
		}
		b[r] = p.Eq.B[r]
	}
	for r := 0; r < mi; r++ {
		row := me + r
		for j := 0; j < n; j++ {
			A.Set(row, j, p.Ineq.A.At(r, j))
		}
		A.Set(row, n+r, 1)
		b[row] = p.Ineq.B[r]
	}
	for k, j := range bounded {
		row := me + mi + k
		A.Set(row, j, 1)
		A.Set(row, n+mi+k, 1)
		b[row] = p.Upper[j]
	}
	for r := range b {
		if b[r] < 0 {
			b[r] = -b[r]
			for j := 0; j < cols; j++ {
				A.Set(r, j, -A.At(r, j))
			}
		}
	}

	c := make([]float64, cols)
	copy(c, p.Objective)

	if m > cols {
		return nil, fmt.Errorf("%w: %d rows exceed %d columns", ErrNotConverged, m, cols)
	}
	optF, optX, err := lp.Simplex(c, A, b, tol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, fmt.Errorf("%w: %v", ErrInfeasible, err)
	case errors.Is(err, lp.ErrUnbounded):
		return nil, fmt.Errorf("%w: %v", ErrUnbounded, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if len(optX) < n {
		return nil, fmt.Errorf("%w: solution has %d values, want %d", ErrNotConverged, len(optX), n)
	}
	x := append([]float64(nil), optX[:n]...)
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite solution", ErrNotConverged)
		}
	}
	return &Solution{X: x, Objective: optF}, nil
}

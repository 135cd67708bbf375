// Package lpsolve is a narrow linear-programming interface so the dispatch
// model does not depend on a particular numerical backend.
package lpsolve

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInfeasible   = errors.New("lp: infeasible")
	ErrUnbounded    = errors.New("lp: unbounded")
	ErrNotConverged = errors.New("lp: solver did not converge")
)

// Constraints is a block of rows A x (= or <=) B.
type Constraints struct {
	A *mat.Dense
	B []float64
}

// Problem is: minimize Objective·x subject to Eq, Ineq and 0 <= x <= Upper.
// Upper may be nil (no upper bounds); +Inf entries are unbounded.
type Problem struct {
	Objective []float64
	Eq        *Constraints
	Ineq      *Constraints
	Upper     []float64
}

// Solution is the optimal point and objective value.
type Solution struct {
	X         []float64
	Objective float64
}

// Solver solves a Problem or returns an error wrapping ErrInfeasible,
// ErrUnbounded or ErrNotConverged.
type Solver interface {
	Solve(p *Problem) (*Solution, error)
}

// Validate checks dimensions.
func (p *Problem) Validate() error {
	n := len(p.Objective)
	if n == 0 {
		return errors.New("lp: empty objective")
	}
	for name, c := range map[string]*Constraints{"equality": p.Eq, "inequality": p.Ineq} {
		if c == nil {
			continue
		}
		r, cols := c.A.Dims()
		if cols != n {
			return fmt.Errorf("lp: %s matrix has %d columns, want %d", name, cols, n)
		}
		if len(c.B) != r {
			return fmt.Errorf("lp: %s rhs has %d rows, want %d", name, len(c.B), r)
		}
	}
	if p.Upper != nil && len(p.Upper) != n {
		return fmt.Errorf("lp: %d upper bounds, want %d", len(p.Upper), n)
	}
	for j, u := range p.Upper {
		if u < 0 || math.IsNaN(u) {
			return fmt.Errorf("lp: upper bound %d is %v", j, u)
		}
	}
	return nil
}

func rows(c *Constraints) int {
	if c == nil {
		return 0
	}
	r, _ := c.A.Dims()
	return r
}

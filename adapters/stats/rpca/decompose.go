package rpca

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// MaxIterations caps the augmented Lagrange multiplier loop
const MaxIterations = 228

// Decomposition splits X into a low-rank part L, a sparse part S and a residual E
type Decomposition struct {
	L          *mat.Dense
	S          *mat.Dense
	E          *mat.Dense
	Iterations int
	Converged  bool
}

// Decompose runs robust PCA on x with the given nuclear-norm and l1 penalties.
// Hitting MaxIterations is not an error; the last iterate is returned.
func Decompose(x mat.Matrix, lPenalty, sPenalty float64) Decomposition {
	rows, cols := x.Dims()
	X := mat.DenseCopyOf(x)
	d := Decomposition{
		L: mat.NewDense(rows, cols, nil),
		S: mat.NewDense(rows, cols, nil),
		E: mat.NewDense(rows, cols, nil),
	}

	l1 := l1Norm(X)
	if l1 == 0 {
		d.Converged = true
		return d
	}

	mu := float64(rows*cols) / (4 * l1)
	frob := mat.Norm(X, 2)
	objPrev := 0.5 * frob * frob
	tol := 1e-8 * objPrev
	diff := 2 * tol

	for diff > tol && d.Iterations < MaxIterations {
		sNorm := d.updateS(X, sPenalty*mu)
		lNorm, ok := d.updateL(X, lPenalty*mu)
		if !ok {
			break
		}
		eNorm := d.updateE(X)

		obj := 0.5*eNorm + lNorm + sNorm
		diff = math.Abs(objPrev - obj)
		objPrev = obj
		mu = dynamicMu(d.E)
		d.Iterations++
	}
	d.Converged = diff <= tol
	return d
}

// updateS soft-thresholds X-L and returns the weighted l1 norm of S
func (d *Decomposition) updateS(X *mat.Dense, penalty float64) float64 {
	d.S.Sub(X, d.L)
	d.S.Apply(func(_, _ int, v float64) float64 { return softThreshold(v, penalty) }, d.S)
	return l1Norm(d.S) * penalty
}

// updateL shrinks the singular values of X-S and returns the weighted nuclear norm of L
func (d *Decomposition) updateL(X *mat.Dense, penalty float64) (float64, bool) {
	var residual mat.Dense
	residual.Sub(X, d.S)

	var svd mat.SVD
	if !svd.Factorize(&residual, mat.SVDThin) {
		return 0, false
	}
	values := svd.Values(nil)
	var nuclear float64
	for i, v := range values {
		values[i] = softThreshold(v, penalty)
		nuclear += values[i]
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var us mat.Dense
	us.Mul(&u, mat.NewDiagDense(len(values), values))
	d.L.Mul(&us, v.T())
	return nuclear * penalty, true
}

// updateE sets E = X-L-S and returns its squared Frobenius norm
func (d *Decomposition) updateE(X *mat.Dense) float64 {
	d.E.Sub(X, d.L)
	d.E.Sub(d.E, d.S)
	n := mat.Norm(d.E, 2)
	return n * n
}

func dynamicMu(e *mat.Dense) float64 {
	rows, cols := e.Dims()
	sd, err := stats.StandardDeviationSample(stats.Float64Data(e.RawMatrix().Data))
	if err != nil || math.IsNaN(sd) {
		sd = 0
	}
	return math.Max(0.01, sd*math.Sqrt(2*float64(max(rows, cols))))
}

func softThreshold(v, penalty float64) float64 {
	return math.Copysign(math.Max(math.Abs(v)-penalty, 0), v)
}

func l1Norm(m *mat.Dense) float64 {
	var sum float64
	for _, v := range m.RawMatrix().Data {
		sum += math.Abs(v)
	}
	return sum
}

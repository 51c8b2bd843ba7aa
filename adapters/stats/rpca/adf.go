package rpca

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// ADFCriticalValue is the 1% critical value of the ADF t-statistic with constant and trend
	ADFCriticalValue = -3.45
	ridgePenalty     = 0.0001
)

// ADFResult is the outcome of an augmented Dickey-Fuller test
type ADFResult struct {
	Lag        int
	Statistic  float64
	PValue     float64
	NeedsDiff  bool
	Performed  bool
	Regressors int
}

// AugmentedDickeyFuller regresses the first difference of ts on its lagged level,
// a constant, a trend and floor(cbrt(n-1)) lagged differences. A statistic above
// ADFCriticalValue means a unit root cannot be rejected and the series should be
// differenced. Series too short to fit the regression are reported as stationary.
func AugmentedDickeyFuller(ts []float64) ADFResult {
	if len(ts) < 3 {
		return ADFResult{}
	}
	lag := int(math.Floor(math.Cbrt(float64(len(ts) - 1))))
	k := lag + 1
	y := diff(ts)

	rows := len(y) - k + 1
	cols := 3 + k - 1
	res := ADFResult{Lag: lag, Regressors: cols}
	if rows <= cols {
		return res
	}

	z := laggedMatrix(y, k)
	design := mat.NewDense(rows, cols, nil)
	response := make([]float64, rows)
	for i := 0; i < rows; i++ {
		response[i] = z.At(i, 0)
		design.Set(i, 0, ts[k-1+i])
		design.Set(i, 1, 1)
		design.Set(i, 2, float64(k+i))
		for j := 1; j < k; j++ {
			design.Set(i, 2+j, z.At(i, j))
		}
	}

	beta, se, err := ridgeRegression(design, response, ridgePenalty)
	if err != nil || se[0] == 0 || math.IsNaN(se[0]) {
		return res
	}

	res.Performed = true
	res.Statistic = beta[0] / se[0]
	res.PValue = distuv.UnitNormal.CDF(res.Statistic)
	res.NeedsDiff = res.Statistic > ADFCriticalValue
	return res
}

// ZeroPaddedDiff is the first difference of ts with a leading zero, preserving length
func ZeroPaddedDiff(ts []float64) []float64 {
	out := make([]float64, len(ts))
	for i := 1; i < len(ts); i++ {
		out[i] = ts[i] - ts[i-1]
	}
	return out
}

func diff(ts []float64) []float64 {
	out := make([]float64, len(ts)-1)
	for i := range out {
		out[i] = ts[i+1] - ts[i]
	}
	return out
}

// laggedMatrix has column j holding y lagged by j, aligned on the latest value
func laggedMatrix(y []float64, lag int) *mat.Dense {
	rows := len(y) - lag + 1
	m := mat.NewDense(rows, lag, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < lag; j++ {
			m.Set(i, j, y[lag-j-1+i])
		}
	}
	return m
}

// ridgeRegression solves (XᵀX + λI)β = Xᵀy and returns β with its standard errors
func ridgeRegression(x *mat.Dense, y []float64, lambda float64) ([]float64, []float64, error) {
	rows, cols := x.Dims()

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for i := 0; i < cols; i++ {
		gram.Set(i, i, gram.At(i, i)+lambda)
	}

	var inv mat.Dense
	if err := inv.Inverse(&gram); err != nil {
		return nil, nil, fmt.Errorf("ridge regression: %w", err)
	}

	yv := mat.NewVecDense(rows, y)
	var xty, beta mat.VecDense
	xty.MulVec(x.T(), yv)
	beta.MulVec(&inv, &xty)

	var fitted, resid mat.VecDense
	fitted.MulVec(x, &beta)
	resid.SubVec(yv, &fitted)
	rss := mat.Dot(&resid, &resid)
	sigma2 := rss / float64(rows-cols)

	coef := make([]float64, cols)
	se := make([]float64, cols)
	for i := 0; i < cols; i++ {
		coef[i] = beta.AtVec(i)
		se[i] = math.Sqrt(sigma2 * inv.At(i, i))
	}
	return coef, se, nil
}

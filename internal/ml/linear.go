package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	KindLinear = "linear_regression"
	KindRidge  = "ridge"

	// singular values below rankTolerance × the largest one are treated as zero
	rankTolerance = 1e-10
)

// linearModel is the shared prediction half of the linear models.
type linearModel struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *linearModel) predict(X mat.Matrix) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	rows, err := checkPredict(X, len(m.Coef))
	if err != nil {
		return nil, err
	}
	out := make([]float64, rows)
	row := make([]float64, len(m.Coef))
	for i := range out {
		mat.Row(row, i, X)
		out[i] = m.Intercept + floats.Dot(row, m.Coef)
	}
	return out, nil
}

// LinearRegression is ordinary least squares with an intercept. It solves
// the minimum-norm least squares problem through an SVD, so collinear or
// constant columns do not make the fit fail.
type LinearRegression struct {
	linearModel
}

// NewLinearRegression returns an unfitted OLS model.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

func (m *LinearRegression) Kind() string { return KindLinear }

func (m *LinearRegression) Fit(X *mat.Dense, y []float64) error {
	rows, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}
	xc, xMean, yc, yMean := center(X, y)

	coef := make([]float64, cols)
	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return errors.New("linear regression: svd factorization failed")
	}
	if rank := svd.Rank(rankTolerance); rank > 0 {
		var beta mat.VecDense
		svd.SolveVecTo(&beta, mat.NewVecDense(rows, yc), rank)
		for j := range coef {
			coef[j] = beta.AtVec(j)
		}
	}

	m.Coef = coef
	m.Intercept = yMean - floats.Dot(xMean, coef)
	return nil
}

func (m *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	return m.predict(X)
}

// Ridge is L2-regularized least squares with an unpenalized intercept.
type Ridge struct {
	Alpha float64 `json:"alpha"`
	linearModel
}

// NewRidge returns an unfitted ridge model with the given penalty.
func NewRidge(alpha float64) *Ridge {
	return &Ridge{Alpha: alpha}
}

func (m *Ridge) Kind() string { return KindRidge }

func (m *Ridge) Fit(X *mat.Dense, y []float64) error {
	if m.Alpha <= 0 {
		return fmt.Errorf("ridge: alpha must be positive, got %v", m.Alpha)
	}
	_, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}
	xc, xMean, yc, yMean := center(X, y)

	// (XᵀX + αI) β = Xᵀy
	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < cols; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.Alpha)
	}
	var xty mat.VecDense
	xty.MulVec(xc.T(), mat.NewVecDense(len(yc), yc))

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return errors.New("ridge: gram matrix is not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return fmt.Errorf("ridge: %w", err)
	}

	coef := make([]float64, cols)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}
	m.Coef = coef
	m.Intercept = yMean - floats.Dot(xMean, coef)
	return nil
}

func (m *Ridge) Predict(X mat.Matrix) ([]float64, error) {
	return m.predict(X)
}

// center subtracts the column means from X and the mean from y.
func center(X *mat.Dense, y []float64) (xc *mat.Dense, xMean []float64, yc []float64, yMean float64) {
	rows, cols := X.Dims()
	xc = mat.DenseCopyOf(X)
	xMean = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		xMean[j] = stat.Mean(col, nil)
		floats.AddConst(-xMean[j], col)
		xc.SetCol(j, col)
	}

	yMean = stat.Mean(y, nil)
	yc = make([]float64, len(y))
	copy(yc, y)
	floats.AddConst(-yMean, yc)
	return xc, xMean, yc, yMean
}

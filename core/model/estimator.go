// Package model defines the estimator interfaces shared by preprocessing
// transformers and regression models, plus fitted-state bookkeeping and gob
// persistence helpers.
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は n×1 の列ベクトル。
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を n×1 の行列で返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor は回帰モデルの基本インターフェース
type Regressor interface {
	Fitter
	Predictor
}

// ValidationFitter は検証データを使って早期終了する反復学習モデルのインターフェース。
// 検証データはテストデータとは別に切り出されたものでなければならない。
type ValidationFitter interface {
	Regressor

	// FitWithValidation は (X, y) で学習し、(Xval, yval) の損失で早期終了を判定する
	FitWithValidation(X, y, Xval, yval mat.Matrix) error
}

// IterationReporter は早期終了の結果を報告するモデルのインターフェース
type IterationReporter interface {
	// StoppedIteration は学習を打ち切ったイテレーション番号
	StoppedIteration() int
	// BestIteration は検証損失が最小だったイテレーション番号
	BestIteration() int
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// InverseTransformer は逆変換可能な変換器のインターフェース
type InverseTransformer interface {
	Transformer

	// InverseTransform は変換を逆方向に適用
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// LinearModel は線形モデルのインターフェース
type LinearModel interface {
	// Coef は学習された係数を返す
	Coef() []float64
	// Intercept は学習された切片を返す
	Intercept() float64
}

// ParameterGetter is the interface for models that expose their hyperparameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ColumnToSlice copies the first column of m into a new slice.
func ColumnToSlice(m mat.Matrix) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = m.At(i, 0)
	}
	return out
}

// SliceToColumn wraps a copy of v as an n×1 matrix.
func SliceToColumn(v []float64) *mat.Dense {
	data := make([]float64, len(v))
	copy(data, v)
	return mat.NewDense(len(v), 1, data)
}

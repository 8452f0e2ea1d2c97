package qrs

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// TemplateMatch минимальная корреляция, при которой комплекс уточняет шаблон
	TemplateMatch = 0.9
	// templateWeight вес нового комплекса в скользящем шаблоне
	templateWeight = 0.125
)

// Template скользящий средний шаблон комплекса. Принадлежит одному детектору.
type Template struct {
	values []float64
	count  int
}

// Correlate коэффициент корреляции Пирсона с шаблоном; 0 если шаблона нет или длины различаются
func (t *Template) Correlate(x []float64) float64 {
	if t.count == 0 || len(x) != len(t.values) {
		return 0
	}
	return pearson(t.values, x)
}

// Update добавляет комплекс в шаблон. Первый комплекс становится шаблоном,
// последующие учитываются только при корреляции не ниже TemplateMatch.
func (t *Template) Update(x []float64, corr float64) bool {
	if t.count == 0 {
		t.values = append([]float64(nil), x...)
		t.count = 1
		return true
	}
	if len(x) != len(t.values) || corr < TemplateMatch {
		return false
	}
	for i, v := range x {
		t.values[i] += templateWeight * (v - t.values[i])
	}
	t.count++
	return true
}

// Count количество комплексов, вошедших в шаблон
func (t *Template) Count() int {
	return t.count
}

// Values копия текущего шаблона
func (t *Template) Values() []float64 {
	return append([]float64(nil), t.values...)
}

// pearson корреляция Пирсона; 0 для постоянного сигнала
func pearson(a, b []float64) float64 {
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

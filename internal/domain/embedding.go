package domain

import "math"

// Norm возвращает евклидову норму вектора, вычисленную в float64.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// Dot возвращает скалярное произведение векторов одинаковой длины.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity возвращает косинусное сходство в [-1, 1].
// Для векторов разной длины или с нулевой нормой возвращает NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.NaN()
	}
	return CosineWithNorms(a, b, Norm(a), Norm(b))
}

// CosineWithNorms считает косинус по заранее вычисленным нормам.
func CosineWithNorms(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return math.NaN()
	}

	sim := Dot(a, b) / (normA * normB)
	switch {
	case math.IsNaN(sim) || math.IsInf(sim, 0):
		return math.NaN()
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

// NormalizeL2 приводит вектор к единичной норме на месте. Нулевой вектор не меняется.
func NormalizeL2(v []float32) {
	n := Norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}

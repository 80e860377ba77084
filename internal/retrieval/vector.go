package retrieval

import "math"

// Cosine returns the cosine similarity of two vectors, accumulating in
// float64 for precision. Mismatched lengths or a zero vector score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq))
}

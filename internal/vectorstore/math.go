package vectorstore

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 when either vector has zero norm, so degraded zero vectors
// never look similar to anything.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// squaredL2 returns the squared Euclidean distance between a and b.
// Assumes equal lengths; the index validates dimensions on entry.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// normalized returns a unit-norm copy of v. Zero vectors are returned as a
// zero copy: they must stay maximally distant from every unit vector
// instead of becoming NaN.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(norm))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

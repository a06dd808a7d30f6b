package review

import "math"

// DefaultCentsPer1KTokens is a rough blended rate, not a billing figure.
const DefaultCentsPer1KTokens = 0.2

// CostCents estimates the cost of tokens at the given rate, rounded up to a
// hundredth of a cent. It never decreases as tokens grow.
func CostCents(tokens int, centsPer1K float64) float64 {
	if tokens <= 0 || centsPer1K <= 0 {
		return 0
	}
	return math.Ceil(float64(tokens)*centsPer1K/10) / 100
}

package pattern

import "math"

// fitPolynomial fits a degree-d polynomial to ys over index positions 0..n-1
// by least squares, solving the normal equations with Gaussian elimination.
// Returns the coefficients c[0..d] (constant term first) and false when the
// system is singular.
//
// Complexity: O(n*d + d^3). d is at most 4 here, so the solve is constant.
func fitPolynomial(ys []float64, degree int) ([]float64, bool) {
	n := len(ys)
	if n < degree+1 {
		return nil, false
	}

	// Power sums S_k = sum(x^k) for k = 0..2d and moment sums T_k = sum(x^k * y).
	powerSums := make([]float64, 2*degree+1)
	moments := make([]float64, degree+1)
	for i := 0; i < n; i++ {
		x := float64(i)
		xp := 1.0
		for k := 0; k <= 2*degree; k++ {
			powerSums[k] += xp
			if k <= degree {
				moments[k] += xp * ys[i]
			}
			xp *= x
		}
	}

	// Assemble the (d+1)x(d+1) normal matrix augmented with the moment vector.
	size := degree + 1
	aug := make([][]float64, size)
	for r := 0; r < size; r++ {
		aug[r] = make([]float64, size+1)
		for c := 0; c < size; c++ {
			aug[r][c] = powerSums[r+c]
		}
		aug[r][size] = moments[r]
	}

	return solveAugmented(aug)
}

// solveAugmented runs Gaussian elimination with partial pivoting over an
// augmented matrix. Returns false for (numerically) singular systems.
func solveAugmented(aug [][]float64) ([]float64, bool) {
	size := len(aug)

	for col := 0; col < size; col++ {
		pivot := col
		for r := col + 1; r < size; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		for r := col + 1; r < size; r++ {
			factor := aug[r][col] / aug[col][col]
			for c := col; c <= size; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	coeffs := make([]float64, size)
	for r := size - 1; r >= 0; r-- {
		sum := aug[r][size]
		for c := r + 1; c < size; c++ {
			sum -= aug[r][c] * coeffs[c]
		}
		coeffs[r] = sum / aug[r][r]
	}
	return coeffs, true
}

// evalPolynomial evaluates coefficients (constant term first) at x via Horner.
func evalPolynomial(coeffs []float64, x float64) float64 {
	result := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = result*x + coeffs[i]
	}
	return result
}

// meanRelativeError compares fitted values against ys. Denominator is floored
// at 1 so near-zero terms do not blow up the metric.
func meanRelativeError(coeffs []float64, ys []float64) float64 {
	total := 0.0
	for i, y := range ys {
		fitted := evalPolynomial(coeffs, float64(i))
		denom := math.Abs(y)
		if denom < 1 {
			denom = 1
		}
		total += math.Abs(fitted-y) / denom
	}
	return total / float64(len(ys))
}

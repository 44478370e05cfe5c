package pattern

import "encore.app/pkg/models"

// Canonical catalog IDs for the sequences the engine knows offline.
const (
	FibonacciID = "A000045"
	LucasID     = "A000032"
)

// fibonacciTerms holds F(0)..F(40). Enough for any realistic query prefix;
// later terms come from the remote catalog.
var fibonacciTerms = []int64{
	0, 1, 1, 2, 3, 5, 8, 13, 21, 34,
	55, 89, 144, 233, 377, 610, 987, 1597, 2584, 4181,
	6765, 10946, 17711, 28657, 46368, 75025, 121393, 196418, 317811, 514229,
	832040, 1346269, 2178309, 3524578, 5702887, 9227465, 14930352, 24157817, 39088169, 63245986,
	102334155,
}

// lucasTerms holds L(0)..L(40).
var lucasTerms = []int64{
	2, 1, 3, 4, 7, 11, 18, 29, 47, 76,
	123, 199, 322, 521, 843, 1364, 2207, 3571, 5778, 9349,
	15127, 24476, 39603, 64079, 103682, 167761, 271443, 439204, 710647, 1149851,
	1860498, 3010349, 4870847, 7881196, 12752043, 20633239, 33385282, 54018521, 87403803, 141422324,
	228826127,
}

// Builtins returns the reference entries the engine carries locally so
// Fibonacci and Lucas validation works with the catalog unreachable. The
// slices are copied; callers own the result.
func Builtins() []models.ReferenceSequence {
	return []models.ReferenceSequence{
		{
			ID:          FibonacciID,
			Name:        "Fibonacci numbers: a(n) = a(n-1) + a(n-2) with a(0) = 0 and a(1) = 1.",
			Terms:       append([]int64(nil), fibonacciTerms...),
			Description: "F(n) = F(n-1) + F(n-2); Binet: F(n) = (phi^n - psi^n)/sqrt(5).",
			Keywords:    []string{"core", "nonn", "fibonacci"},
			Offset:      0,
		},
		{
			ID:          LucasID,
			Name:        "Lucas numbers beginning at 2: L(n) = L(n-1) + L(n-2), L(0) = 2, L(1) = 1.",
			Terms:       append([]int64(nil), lucasTerms...),
			Description: "L(n) = L(n-1) + L(n-2); Binet: L(n) = phi^n + psi^n.",
			Keywords:    []string{"core", "nonn", "lucas"},
			Offset:      0,
		},
	}
}

// IsFibonacci reports membership in the cached Fibonacci terms.
func IsFibonacci(n int64) bool { return containsTerm(fibonacciTerms, n) }

// IsLucas reports membership in the cached Lucas terms.
func IsLucas(n int64) bool { return containsTerm(lucasTerms, n) }

func containsTerm(terms []int64, n int64) bool {
	for _, t := range terms {
		if t == n {
			return true
		}
	}
	return false
}

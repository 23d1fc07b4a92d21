package callgrind

import (
	"fmt"
)

// CostFormat selects how a raw integer cost is rendered relative to the
// trace's summary header.
type CostFormat string

const (
	FormatPercent CostFormat = "percent"
	FormatMsec    CostFormat = "msec"
	FormatUsec    CostFormat = "usec"
)

// formatCost converts a raw cost into the requested format given the
// trace's total summary time. Percent is rendered with exactly two
// decimal places; msec rounds half-away-from-zero; usec (and any
// unrecognized tag) passes the raw value through unchanged.
func formatCost(cost uint64, format CostFormat, summary uint64) string {
	switch format {
	case FormatPercent:
		if summary == 0 {
			return "0.00"
		}
		pct := float64(cost) * 100 / float64(summary)
		return fmt.Sprintf("%.2f", pct)
	case FormatMsec:
		return fmt.Sprintf("%d", roundHalfAwayFromZero(cost, 1000))
	default: // FormatUsec and anything unrecognized
		return fmt.Sprintf("%d", cost)
	}
}

// roundHalfAwayFromZero divides cost by divisor and rounds to the
// nearest integer, ties rounding away from zero. Costs and divisors here
// are always non-negative, so "away from zero" reduces to "round up on
// an exact half".
func roundHalfAwayFromZero(cost uint64, divisor uint64) uint64 {
	if divisor == 0 {
		return cost
	}
	q := cost / divisor
	r := cost % divisor
	if 2*r >= divisor {
		q++
	}
	return q
}

package timing

import "fmt"

// RateScale is the fixed-point denominator for stored rates. Rates are kept
// as scaled integers so reimplementations and the database agree bit-for-bit
// instead of drifting through floats.
const RateScale = 10000

// Rate is a ratio stored as an integer scaled by RateScale.
// NewRate(8, 12) == Rate(6666) ≈ 66.66%.
type Rate int64

// NewRate computes part/whole as a fixed-point Rate. A zero whole yields a
// zero rate.
func NewRate(part, whole int64) Rate {
	if whole == 0 {
		return 0
	}
	return Rate(part * RateScale / whole)
}

// Float returns the rate as a fraction in [0, 1].
func (r Rate) Float() float64 {
	return float64(r) / RateScale
}

// Percent returns the rate as a percentage.
func (r Rate) Percent() float64 {
	return r.Float() * 100
}

func (r Rate) String() string {
	return fmt.Sprintf("%.2f%%", r.Percent())
}

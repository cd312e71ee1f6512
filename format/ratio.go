package format

import "strconv"

// Ratio is a rational number such as a frame rate, a display aspect ratio
// or an audio sampling rate.
type Ratio struct {
	Num int64
	Den int64
}

// Frame rates of the two scanning modes.
var (
	InterlacedFrameRate  = Ratio{Num: 30000, Den: 1001}
	ProgressiveFrameRate = Ratio{Num: 60000, Den: 1001}
)

// Float64 returns the ratio as a float, or 0 when the denominator is zero.
func (r Ratio) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the ratio is unset.
func (r Ratio) IsZero() bool {
	return r.Num == 0 && r.Den == 0
}

func (r Ratio) String() string {
	return strconv.FormatInt(r.Num, 10) + "/" + strconv.FormatInt(r.Den, 10)
}

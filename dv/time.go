package dv

import (
	"math"
	"math/big"
	"time"

	"github.com/zsiec/pv4/format"
)

// VideoFrameToDuration returns the presentation time of the given frame.
// The result is rounded up to the nanosecond, so DurationToVideoFrame maps
// it back to the same frame.
func (d *DV) VideoFrameToDuration(frame int) time.Duration {
	r := d.frameRate
	return time.Duration(mulDiv(int64(frame), r.Den*int64(time.Second), r.Num, true))
}

// DurationToVideoFrame returns the frame being presented at t.
func (d *DV) DurationToVideoFrame(t time.Duration) int {
	r := d.frameRate
	return int(mulDiv(int64(t), r.Num, r.Den*int64(time.Second), false))
}

// AudioSampleToDuration returns the time of the given audio sample. It is 0
// when the sampling rate is unknown.
func (d *DV) AudioSampleToDuration(sample int64) time.Duration {
	r := d.AudioSamplingRate()
	return time.Duration(mulDiv(sample, r.Den*int64(time.Second), r.Num, true))
}

// DurationToAudioSample returns the audio sample at t.
func (d *DV) DurationToAudioSample(t time.Duration) int64 {
	r := d.AudioSamplingRate()
	return mulDiv(int64(t), r.Num, r.Den*int64(time.Second), false)
}

// AudioSampleToVideoFrame returns the frame the given audio sample falls
// in, at the current sampling rate.
func (d *DV) AudioSampleToVideoFrame(sample int64) int {
	return AudioSampleToVideoFrame(sample, d.frameRate, d.AudioSamplingRate())
}

// VideoFrameToAudioSample returns the first audio sample of the given frame,
// at the current sampling rate.
func (d *DV) VideoFrameToAudioSample(frame int) int64 {
	return VideoFrameToAudioSample(frame, d.frameRate, d.AudioSamplingRate())
}

// AudioSampleToVideoFrame converts a sample number to a frame number.
func AudioSampleToVideoFrame(sample int64, frameRate, samplingRate format.Ratio) int {
	return int(mulDiv(sample, frameRate.Num*samplingRate.Den, frameRate.Den*samplingRate.Num, false))
}

// VideoFrameToAudioSample converts a frame number to a sample number.
func VideoFrameToAudioSample(frame int, frameRate, samplingRate format.Ratio) int64 {
	return mulDiv(int64(frame), samplingRate.Num*frameRate.Den, samplingRate.Den*frameRate.Num, false)
}

// mulDiv returns a*b/c without intermediate overflow, rounding toward
// negative infinity or, if ceil is set, toward positive infinity. It
// returns 0 when c is 0 and saturates results outside the int64 range.
func mulDiv(a, b, c int64, ceil bool) int64 {
	if c == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	d := big.NewInt(c)
	q, m := new(big.Int).DivMod(n, d, new(big.Int))
	// DivMod rounds toward negative infinity only for positive divisors.
	if d.Sign() < 0 && m.Sign() != 0 {
		q.Sub(q, big.NewInt(1))
		m.Add(m, d)
	}
	if ceil && m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsInt64() {
		if q.Sign() < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return q.Int64()
}

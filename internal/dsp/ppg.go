package dsp

import (
	"math"
	"sort"
)

const (
	ppgMinSamples  = 3000
	ppgFs          = 50.0
	ppgDownsampleN = 250
)

// PPGProcessor runs the PPG pipeline and carries forward the last good
// HRV metrics when a processing interval's data is insufficient or
// noisy: the filtered/SQI series are always fresh, but bpm/sdnn/...
// hold their last good values rather than resetting to zero.
type PPGProcessor struct {
	lastGood *PPGFrame
}

// NewPPGProcessor creates a PPGProcessor with no prior good frame.
func NewPPGProcessor() *PPGProcessor {
	return &PPGProcessor{}
}

// Process implements the PPG pipeline. Returns (nil, false) if fewer than
// ppgMinSamples raw samples are available.
func (p *PPGProcessor) Process(timestamp float64, red, ir []float64) (*PPGFrame, bool) {
	if len(red) < ppgMinSamples {
		return nil, false
	}

	b, a := butterBandpassOrder2(0.5, 5.0, ppgFs)
	filtered := filtfilt(b, a, red)

	sqi := amplitudeSQI(filtered, 25, 50)
	goodMask := make([]bool, len(sqi))
	goodCount := 0
	for i, v := range sqi {
		if v >= 0.95 {
			goodMask[i] = true
			goodCount++
		}
	}
	goodRatio := float64(goodCount) / float64(len(sqi))

	frame := &PPGFrame{
		Timestamp:     timestamp,
		FilteredPPG:   downsampleRecent(filtered, ppgDownsampleN),
		PPGSQI:        downsampleRecent(sqi, ppgDownsampleN),
		RedMean:       mean(red),
		IRMean:        mean(ir),
		SignalQuality: QualityPoor,
	}

	if goodRatio >= 0.5 {
		good := make([]float64, 0, goodCount)
		for i, v := range filtered {
			if goodMask[i] {
				good = append(good, v)
			}
		}
		if metrics, ok := computeHRV(good, ppgFs); ok {
			frame.BPM = metrics.bpm
			frame.SDNN = metrics.sdnn
			frame.RMSSD = metrics.rmssd
			frame.PNN50 = metrics.pnn50
			frame.SDSD = metrics.sdsd
			frame.HRMad = metrics.hrMad
			frame.SD1 = metrics.sd1
			frame.SD2 = metrics.sd2
			frame.RRIntervals = metrics.rr
			frame.LF = metrics.lf
			frame.HF = metrics.hf
			frame.LFHF = metrics.lfhf
			frame.SignalQuality = QualityGood
			cached := *frame
			p.lastGood = &cached
			return frame, true
		}
	}

	if p.lastGood != nil {
		frame.BPM = p.lastGood.BPM
		frame.SDNN = p.lastGood.SDNN
		frame.RMSSD = p.lastGood.RMSSD
		frame.PNN50 = p.lastGood.PNN50
		frame.SDSD = p.lastGood.SDSD
		frame.HRMad = p.lastGood.HRMad
		frame.SD1 = p.lastGood.SD1
		frame.SD2 = p.lastGood.SD2
		frame.RRIntervals = p.lastGood.RRIntervals
		frame.LF = p.lastGood.LF
		frame.HF = p.lastGood.HF
		frame.LFHF = p.lastGood.LFHF
	}
	return frame, true
}

type hrvMetrics struct {
	bpm, sdnn, rmssd, pnn50, sdsd, hrMad, sd1, sd2, lf, hf, lfhf float64
	rr                                                           []float64
}

func computeHRV(data []float64, fs float64) (hrvMetrics, bool) {
	peaks := detectPeaks(data, int(0.4*fs))
	if len(peaks) < 3 {
		return hrvMetrics{}, false
	}

	rr := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		rr = append(rr, float64(peaks[i]-peaks[i-1])/fs*1000)
	}

	diffs := make([]float64, 0, len(rr)-1)
	for i := 1; i < len(rr); i++ {
		diffs = append(diffs, rr[i]-rr[i-1])
	}

	m := hrvMetrics{rr: rr}
	m.bpm = 60000.0 / mean(rr)
	m.sdnn = stddev(rr)
	m.rmssd = rms(diffs)
	m.sdsd = stddev(diffs)

	nn50 := 0
	for _, d := range diffs {
		if math.Abs(d) > 50 {
			nn50++
		}
	}
	if len(diffs) > 0 {
		m.pnn50 = float64(nn50) / float64(len(diffs)) * 100
	}

	hr := make([]float64, len(rr))
	for i, r := range rr {
		hr[i] = 60000.0 / r
	}
	m.hrMad = medianAbsoluteDeviation(hr)

	m.sd1 = m.sdsd / math.Sqrt2
	sd2sq := 2*m.sdnn*m.sdnn - m.sd1*m.sd1
	if sd2sq > 0 {
		m.sd2 = math.Sqrt(sd2sq)
	}

	cleaned := make([]float64, 0, len(rr))
	for _, r := range rr {
		if r >= 300 && r <= 1200 {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) >= 30 {
		m.lf, m.hf, m.lfhf = computeLFHF(cleaned)
	}

	return m, true
}

// detectPeaks finds local maxima at least minDistance samples apart.
func detectPeaks(data []float64, minDistance int) []int {
	if minDistance < 1 {
		minDistance = 1
	}
	var peaks []int
	for i := 1; i < len(data)-1; i++ {
		if data[i] > data[i-1] && data[i] >= data[i+1] {
			if len(peaks) == 0 || i-peaks[len(peaks)-1] >= minDistance {
				peaks = append(peaks, i)
			} else if data[i] > data[peaks[len(peaks)-1]] {
				peaks[len(peaks)-1] = i
			}
		}
	}
	return peaks
}

// computeLFHF interpolates RR (ms) onto a 4 Hz grid, runs a Welch PSD,
// and trapezoidally integrates the LF/HF bands.
func computeLFHF(rrMs []float64) (lf, hf, lfhf float64) {
	const interpFs = 4.0
	rrS := make([]float64, len(rrMs))
	for i, r := range rrMs {
		rrS[i] = r / 1000.0
	}
	t := make([]float64, len(rrS))
	cum := 0.0
	for i, r := range rrS {
		cum += r
		t[i] = cum
	}

	var interp []float64
	for tt := t[0]; tt <= t[len(t)-1]; tt += 1 / interpFs {
		interp = append(interp, interpAt(t, rrS, tt))
	}
	if len(interp) < 4 {
		return 0, 0, 0
	}

	nperseg := len(interp)
	if nperseg > 256 {
		nperseg = 256
	}
	freqs, psd := welchPSD(interp, interpFs, nperseg)

	lf = trapzBand(freqs, psd, 0.04, 0.15) * 1e5
	hf = trapzBand(freqs, psd, 0.15, 0.4) * 1e5
	if hf > 0 {
		lfhf = lf / hf
	}
	return lf, hf, lfhf
}

func trapzBand(freqs, psd []float64, lo, hi float64) float64 {
	var sum float64
	for i := 1; i < len(freqs); i++ {
		if freqs[i-1] >= lo && freqs[i-1] < hi && freqs[i] >= lo && freqs[i] < hi {
			sum += (psd[i] + psd[i-1]) / 2 * (freqs[i] - freqs[i-1])
		}
	}
	return sum
}

func interpAt(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	i := sort.SearchFloat64s(xs, x)
	if i == 0 {
		return ys[0]
	}
	x0, x1 := xs[i-1], xs[i]
	y0, y1 := ys[i-1], ys[i]
	frac := (x - x0) / (x1 - x0)
	return y0 + frac*(y1-y0)
}

func downsampleRecent(data []float64, n int) []float64 {
	recent := data
	if len(recent) > 1000 {
		recent = recent[len(recent)-1000:]
	}
	return downsample(recent, n)
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func stddev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := mean(data)
	var sumSq float64
	for _, v := range data {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(data)))
}

func rms(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range data {
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(data)))
}

func medianAbsoluteDeviation(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	med := median(sorted)
	devs := make([]float64, len(data))
	for i, v := range data {
		devs[i] = math.Abs(v - med)
	}
	sort.Float64s(devs)
	return median(devs)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

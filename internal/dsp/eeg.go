package dsp

const (
	eegMinSamples  = 2000
	eegFs          = 250.0
	eegDownsampleN = 250

	// eegGoodSamplesMin gates both the wavelet TFR and the good/poor
	// verdict: below it the window is too contaminated for spectral
	// estimates to mean anything.
	eegGoodSamplesMin = 1000
)

// ProcessEEG implements the EEG pipeline: notch + bandpass
// filter both channels, score signal quality, run a Morlet wavelet TFR on
// the quality-masked signal when enough good samples exist, compute band
// powers and the six derived indices. Returns (nil, false) when there
// isn't enough data yet; a no-op, not an error.
func ProcessEEG(timestamp float64, ch1, ch2 []float64, leadOffCh1, leadOffCh2 []bool) (*EEGFrame, bool) {
	if len(ch1) < eegMinSamples || len(ch2) < eegMinSamples {
		return nil, false
	}

	ch1Filtered := bandpassEEG(ch1)
	ch2Filtered := bandpassEEG(ch2)

	ch1Amp := amplitudeSQI(ch1Filtered, 10, 100)
	ch2Amp := amplitudeSQI(ch2Filtered, 10, 100)
	ch1Freq := frequencySQI(ch1Filtered, eegFs, 1, 45, 50)
	ch2Freq := frequencySQI(ch2Filtered, eegFs, 1, 45, 50)
	ch1SQI := combinedSQI(ch1Amp, ch1Freq)
	ch2SQI := combinedSQI(ch2Amp, ch2Freq)

	goodSamples := 0
	ch1Quality := make([]float64, 0, len(ch1Filtered))
	ch2Quality := make([]float64, 0, len(ch2Filtered))
	for i := range ch1Filtered {
		if ch1SQI[i] >= 0.7 && ch2SQI[i] >= 0.7 {
			goodSamples++
			ch1Quality = append(ch1Quality, ch1Filtered[i])
			ch2Quality = append(ch2Quality, ch2Filtered[i])
		}
	}

	var ch1Power, ch2Power, freqs []float64
	if goodSamples >= eegGoodSamplesMin {
		freqs = make([]float64, 45)
		nCycles := make([]float64, 45)
		for i := 0; i < 45; i++ {
			f := float64(i + 1)
			freqs[i] = f
			nCycles[i] = f / 2
		}
		ch1Power = morletTFR(ch1Quality, eegFs, freqs, nCycles)
		ch2Power = morletTFR(ch2Quality, eegFs, freqs, nCycles)
	}

	ch1BandPowers := computeBandPowers(ch1Power, freqs)
	ch2BandPowers := computeBandPowers(ch2Power, freqs)

	frame := &EEGFrame{
		Timestamp:       timestamp,
		Ch1Filtered:     downsample(ch1Filtered, eegDownsampleN),
		Ch2Filtered:     downsample(ch2Filtered, eegDownsampleN),
		Ch1LeadOff:      anyTrue(leadOffCh1),
		Ch2LeadOff:      anyTrue(leadOffCh2),
		Ch1SQI:          downsample(ch1SQI, eegDownsampleN),
		Ch2SQI:          downsample(ch2SQI, eegDownsampleN),
		Ch1Power:        ch1Power,
		Ch2Power:        ch2Power,
		Frequencies:     freqs,
		Ch1BandPowers:   ch1BandPowers,
		Ch2BandPowers:   ch2BandPowers,
		GoodSampleRatio: float64(goodSamples) / float64(len(ch1Filtered)),
	}
	if goodSamples >= eegGoodSamplesMin {
		frame.SignalQuality = QualityGood
	} else {
		frame.SignalQuality = QualityPoor
	}
	frame.Indices = eegIndices(ch1BandPowers, ch2BandPowers)
	return frame, true
}

func bandpassEEG(data []float64) []float64 {
	notched := notchFilter(data, 60, eegFs, 30)
	b, a := butterBandpass(4, 1, 45, eegFs)
	return filtfilt(b, a, notched)
}

// eegIndices computes the six derived indices from band powers,
// guarding every ratio against a zero denominator.
func eegIndices(ch1, ch2 map[EEGBand]float64) EEGIndices {
	alpha, theta, beta, gamma := ch1[BandAlpha], ch1[BandTheta], ch1[BandBeta], ch1[BandGamma]

	safeDiv := func(num, den float64) float64 {
		if den == 0 {
			return 0
		}
		return num / den
	}

	hemispheric := 0.0
	if left, right := ch1[BandAlpha], ch2[BandAlpha]; left+right != 0 {
		hemispheric = (left - right) / (left + right)
	}

	return EEGIndices{
		Focus:              safeDiv(beta, alpha+theta),
		Relaxation:         safeDiv(alpha, alpha+beta),
		Stress:             safeDiv(beta+gamma, alpha+theta),
		HemisphericBalance: hemispheric,
		CognitiveLoad:      safeDiv(theta, alpha),
		EmotionalStability: safeDiv(alpha+theta, gamma),
	}
}

func downsample(data []float64, n int) []float64 {
	if len(data) <= n {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}
	factor := len(data) / n
	if factor < 1 {
		factor = 1
	}
	out := make([]float64, 0, n)
	for i := 0; i < len(data); i += factor {
		out = append(out, data[i])
	}
	return out
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

package dsp

import "math"

// morletTFR computes a per-frequency time-averaged power spectrum via a
// Morlet continuous wavelet transform, the equivalent of
// mne.time_frequency.tfr_morlet's epoch-averaged output. freqs are in
// Hz, nCycles the convolution cycle count per frequency (n_cycles =
// f/2 here), fs the sample rate. Returns power in dB
// (10*log10(mean |Wx(f,t)|^2)), one value per frequency.
func morletTFR(data []float64, fs float64, freqs, nCycles []float64) []float64 {
	powerDB := make([]float64, len(freqs))
	for i, f := range freqs {
		kernel := morletKernel(f, nCycles[i], fs)
		conv := convolveComplex(data, kernel)
		var sumSq float64
		for _, c := range conv {
			mag2 := real(c)*real(c) + imag(c)*imag(c)
			sumSq += mag2
		}
		mean := sumSq / float64(len(conv))
		if mean <= 0 {
			powerDB[i] = -300 // effectively silent
			continue
		}
		powerDB[i] = 10 * math.Log10(mean)
	}
	return powerDB
}

// morletKernel builds a complex Morlet wavelet sampled at fs for center
// frequency f and cycle count nCycles.
func morletKernel(f, nCycles, fs float64) []complex128 {
	sigma := nCycles / (2 * math.Pi * f)
	halfLen := int(3.5 * sigma * fs)
	if halfLen < 1 {
		halfLen = 1
	}
	kernel := make([]complex128, 2*halfLen+1)
	norm := 1.0 / math.Sqrt(sigma*math.Sqrt(math.Pi)*fs)
	for i := -halfLen; i <= halfLen; i++ {
		t := float64(i) / fs
		gauss := math.Exp(-t * t / (2 * sigma * sigma))
		phase := 2 * math.Pi * f * t
		kernel[i+halfLen] = complex(norm*gauss*math.Cos(phase), norm*gauss*math.Sin(phase))
	}
	return kernel
}

// convolveComplex performs a "same"-length real/complex convolution
// (output length == len(data)), matching the way a wavelet transform
// preserves the original signal's time axis.
func convolveComplex(data []float64, kernel []complex128) []complex128 {
	half := len(kernel) / 2
	out := make([]complex128, len(data))
	for n := range data {
		var acc complex128
		for k, kv := range kernel {
			idx := n + half - k
			if idx < 0 || idx >= len(data) {
				continue
			}
			acc += complex(data[idx], 0) * kv
		}
		out[n] = acc
	}
	return out
}

// computeBandPowers averages the power spectrum (already in dB) over
// each band's [low, high) frequency range.
func computeBandPowers(powerDB, freqs []float64) map[EEGBand]float64 {
	out := make(map[EEGBand]float64, len(eegBandRanges))
	for band, rng := range eegBandRanges {
		var sum float64
		var n int
		for i, f := range freqs {
			if f >= rng[0] && f < rng[1] {
				sum += powerDB[i]
				n++
			}
		}
		if n > 0 {
			out[band] = sum / float64(n)
		}
	}
	return out
}

package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// AmplitudeSQIWeight and FrequencySQIWeight are the combined-SQI mixing
// weights. The frequency SQI is always computed and reported alongside
// the amplitude SQI even though only amplitude currently contributes
// to the combined score; reweighting is a one-line change here.
const (
	AmplitudeSQIWeight = 1.0
	FrequencySQIWeight = 0.0
)

// amplitudeSQI scores each sample by the fraction of a window whose
// absolute value is below threshold. Windows slide one sample at a time
// and later windows overwrite earlier ones, so a sample carries the
// score of the window starting at it (the last len(data)-window+1..end
// samples all carry the final window's score).
func amplitudeSQI(data []float64, window int, threshold float64) []float64 {
	out := make([]float64, len(data))
	if len(data) < window {
		return out
	}
	for i := 0; i+window <= len(data); i++ {
		good := 0
		for _, v := range data[i : i+window] {
			if v < 0 {
				v = -v
			}
			if v < threshold {
				good++
			}
		}
		sqi := float64(good) / float64(window)
		for j := i; j < i+window; j++ {
			out[j] = sqi
		}
	}
	return out
}

// frequencySQI scores each window by the fraction of spectral power
// falling in [lowHz, highHz] under a Welch periodogram.
func frequencySQI(data []float64, fs, lowHz, highHz float64, window int) []float64 {
	out := make([]float64, len(data))
	if len(data) < window {
		return out
	}
	nperseg := window
	if nperseg > 32 {
		nperseg = 32
	}
	for i := 0; i+window <= len(data); i++ {
		freqs, psd := welchPSD(data[i:i+window], fs, nperseg)
		var band, total float64
		for k, f := range freqs {
			total += psd[k]
			if f >= lowHz && f <= highHz {
				band += psd[k]
			}
		}
		sqi := 0.0
		if total > 0 {
			sqi = band / total
		}
		for j := i; j < i+window; j++ {
			out[j] = sqi
		}
	}
	return out
}

// combinedSQI blends amplitude and frequency SQI per AmplitudeSQIWeight /
// FrequencySQIWeight.
func combinedSQI(amplitude, frequency []float64) []float64 {
	out := make([]float64, len(amplitude))
	for i := range out {
		out[i] = AmplitudeSQIWeight*amplitude[i] + FrequencySQIWeight*frequency[i]
	}
	return out
}

// welchPSD computes a single-segment (no averaging beyond nperseg-sized
// windowing) Welch-style power spectral density estimate using gonum's
// real FFT, with a Hann window applied to reduce spectral leakage.
func welchPSD(data []float64, fs float64, nperseg int) (freqs, psd []float64) {
	if nperseg > len(data) {
		nperseg = len(data)
	}
	if nperseg < 2 {
		return nil, nil
	}

	windowed := make([]float64, nperseg)
	winSum := 0.0
	for i := 0; i < nperseg; i++ {
		w := 0.5 - 0.5*cos2pi(float64(i)/float64(nperseg-1))
		windowed[i] = data[i] * w
		winSum += w * w
	}

	fft := fourier.NewFFT(nperseg)
	spectrum := fft.Coefficients(nil, windowed)

	n := nperseg/2 + 1
	freqs = make([]float64, n)
	psd = make([]float64, n)
	scale := 1.0 / (fs * winSum)
	for k := 0; k < n; k++ {
		freqs[k] = float64(k) * fs / float64(nperseg)
		mag2 := real(spectrum[k])*real(spectrum[k]) + imag(spectrum[k])*imag(spectrum[k])
		p := scale * mag2
		if k != 0 && k != n-1 {
			p *= 2
		}
		psd[k] = p
	}
	return freqs, psd
}

func cos2pi(x float64) float64 {
	return math.Cos(2 * math.Pi * x)
}

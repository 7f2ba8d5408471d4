package dsp

import (
	"math"
	"math/cmplx"
)

// Butterworth bandpass/notch design and zero-phase (forward-backward)
// application, following the standard analog-prototype ->
// bandpass-transform -> bilinear-transform pipeline, the same approach
// scipy.signal.butter uses internally.

// butterBandpass designs an order-N Butterworth bandpass filter and
// returns its transposed-direct-form-II coefficients (b is the numerator,
// a the denominator, a[0] == 1).
func butterBandpass(order int, lowHz, highHz, fs float64) (b, a []float64) {
	wl := prewarp(lowHz, fs)
	wh := prewarp(highHz, fs)
	w0 := math.Sqrt(wl * wh)
	bw := wh - wl

	poles := make([]complex128, 0, 2*order)
	for k := 0; k < order; k++ {
		theta := math.Pi * (2*float64(k) + float64(order) + 1) / (2 * float64(order))
		proto := complex(math.Cos(theta), math.Sin(theta)) // unit-circle prototype pole
		// Bandpass transform: s = (p*bw ± sqrt((p*bw)^2 - 4*w0^2)) / 2
		pbw := proto * complex(bw, 0)
		disc := cmplx.Sqrt(pbw*pbw - complex(4*w0*w0, 0))
		poles = append(poles, (pbw+disc)/2, (pbw-disc)/2)
	}
	// N zeros at s=0 (bandpass has a zero of multiplicity N at the origin).
	zeros := make([]complex128, order)

	zPoles := make([]complex128, len(poles))
	zZeros := make([]complex128, len(zeros))
	for i, p := range poles {
		zPoles[i] = bilinear(p, fs)
	}
	for i, z := range zeros {
		zZeros[i] = bilinear(z, fs)
	}
	// Remaining zeros land at z=-1 (Nyquist) after the bilinear transform
	// of the analog infinite zeros that a bandpass always carries.
	for i := 0; i < order; i++ {
		zZeros = append(zZeros, -1)
	}

	bC := polyFromRoots(zZeros)
	aC := polyFromRoots(zPoles)

	// Gain-normalize so |H(e^{jw0})| == 1 at the passband center.
	w0z := cmplx.Exp(complex(0, prewarpToZAngle(w0, fs)))
	num := polyEval(bC, w0z)
	den := polyEval(aC, w0z)
	k := den / num

	b = make([]float64, len(bC))
	for i, c := range bC {
		b[i] = real(c * k)
	}
	a = make([]float64, len(aC))
	for i, c := range aC {
		a[i] = real(c)
	}
	return b, a
}

// butterBandpassOrder2 is butterBandpass with the order fixed at 2, kept
// as a thin alias for call-site clarity in ppg.go.
func butterBandpassOrder2(lowHz, highHz, fs float64) (b, a []float64) {
	return butterBandpass(2, lowHz, highHz, fs)
}

func prewarp(fHz, fs float64) float64 {
	return 2 * fs * math.Tan(math.Pi*fHz/fs)
}

func prewarpToZAngle(wAnalog, fs float64) float64 {
	// Inverse of the prewarp used for coefficient normalization: find the
	// digital angle w_d such that analog-domain w0 corresponds to it.
	return 2 * math.Atan(wAnalog/(2*fs))
}

func bilinear(s complex128, fs float64) complex128 {
	twoFs := complex(2*fs, 0)
	return (twoFs + s) / (twoFs - s)
}

// polyFromRoots expands prod(z - r_i) into coefficients, highest degree
// first.
func polyFromRoots(roots []complex128) []complex128 {
	coeffs := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, c := range coeffs {
			next[i] += c
			next[i+1] -= c * r
		}
		coeffs = next
	}
	return coeffs
}

func polyEval(coeffs []complex128, x complex128) complex128 {
	var acc complex128
	for _, c := range coeffs {
		acc = acc*x + c
	}
	return acc
}

// notchFilter designs a narrow-band IIR notch at freqHz (Q-factor q)
// using the standard RBJ biquad cookbook form, applied zero-phase via
// filtfilt (a forward-backward IIR pass achieves the same zero-phase
// property as a linear-phase FIR without needing a long kernel).
func notchFilter(data []float64, freqHz, fs, q float64) []float64 {
	w0 := 2 * math.Pi * freqHz / fs
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	b0, b1, b2 := 1.0, -2*cosW0, 1.0
	a0, a1, a2 := 1+alpha, -2*cosW0, 1-alpha

	b := []float64{b0 / a0, b1 / a0, b2 / a0}
	a := []float64{1, a1 / a0, a2 / a0}
	return filtfilt(b, a, data)
}

// filtfilt applies an IIR filter forward then backward to cancel phase
// distortion, matching scipy.signal.filtfilt's default behavior (minus
// its edge padding, which this implementation omits for simplicity).
func filtfilt(b, a []float64, data []float64) []float64 {
	fwd := lfilter(b, a, data)
	reverse(fwd)
	bwd := lfilter(b, a, fwd)
	reverse(bwd)
	return bwd
}

// lfilter is a direct-form-II transposed IIR filter, the same structure
// scipy.signal.lfilter uses.
func lfilter(b, a []float64, x []float64) []float64 {
	n := len(b)
	if len(a) > n {
		n = len(a)
	}
	bb := make([]float64, n)
	copy(bb, b)
	aa := make([]float64, n)
	copy(aa, a)

	y := make([]float64, len(x))
	z := make([]float64, n-1)
	for i, xi := range x {
		yi := bb[0]*xi + z[0]
		for j := 1; j < n-1; j++ {
			z[j-1] = bb[j]*xi + z[j] - aa[j]*yi
		}
		if n > 1 {
			z[n-2] = bb[n-1]*xi - aa[n-1]*yi
		}
		y[i] = yi
	}
	return y
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(freq, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return out
}

func TestProcessEEG_InsufficientDataIsNoop(t *testing.T) {
	frame, ok := ProcessEEG(0, make([]float64, 100), make([]float64, 100), nil, nil)
	assert.False(t, ok)
	assert.Nil(t, frame)
}

func TestProcessEEG_EnoughDataProducesFrame(t *testing.T) {
	ch1 := sineWave(10, eegFs, eegMinSamples)
	ch2 := sineWave(10, eegFs, eegMinSamples)
	frame, ok := ProcessEEG(1.0, ch1, ch2, make([]bool, eegMinSamples), make([]bool, eegMinSamples))
	require.True(t, ok)
	require.NotNil(t, frame)
	assert.Len(t, frame.Ch1Filtered, eegDownsampleN)
	assert.Len(t, frame.Ch2SQI, eegDownsampleN)
	assert.Contains(t, []string{string(QualityGood), string(QualityPoor)}, string(frame.SignalQuality))
}

func TestEEGIndices_ZeroDenominatorGuarded(t *testing.T) {
	zero := map[EEGBand]float64{}
	idx := eegIndices(zero, zero)
	assert.Equal(t, EEGIndices{}, idx)
}

func TestAmplitudeSQI_FlagsHighAmplitudeWindow(t *testing.T) {
	data := make([]float64, 30)
	for i := range data {
		data[i] = 1000 // always above threshold
	}
	sqi := amplitudeSQI(data, 10, 100)
	for _, v := range sqi[:20] {
		assert.Equal(t, 0.0, v)
	}
}

func TestCombinedSQI_OnlyAmplitudeContributes(t *testing.T) {
	amp := []float64{1, 0.5, 0}
	freq := []float64{0, 1, 1}
	combined := combinedSQI(amp, freq)
	assert.Equal(t, amp, combined)
}

func TestProcessACC_InsufficientDataIsNoop(t *testing.T) {
	frame, ok := ProcessACC(0, make([]float64, 5), make([]float64, 5), make([]float64, 5))
	assert.False(t, ok)
	assert.Nil(t, frame)
}

func TestProcessACC_ClassifiesStationary(t *testing.T) {
	x := make([]float64, 60)
	y := make([]float64, 60)
	z := make([]float64, 60)
	frame, ok := ProcessACC(0, x, y, z)
	require.True(t, ok)
	assert.Equal(t, "stationary", frame.ActivityState)
}

func TestProcessACC_ClassifiesRunning(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		if i%2 == 0 {
			x[i] = 5000
		} else {
			x[i] = -5000
		}
	}
	y := make([]float64, 60)
	z := make([]float64, 60)
	frame, ok := ProcessACC(0, x, y, z)
	require.True(t, ok)
	assert.Equal(t, "running", frame.ActivityState)
}

func TestProcessBAT_BucketsByLevel(t *testing.T) {
	high, ok := ProcessBAT(0, []float64{90, 85, 95}, 3)
	require.True(t, ok)
	assert.Equal(t, "high", high.BatteryStatus)

	low, ok := ProcessBAT(0, []float64{5, 10, 3}, 3)
	require.True(t, ok)
	assert.Equal(t, "low", low.BatteryStatus)
}

func TestProcessBAT_InsufficientSamplesIsNoop(t *testing.T) {
	_, ok := ProcessBAT(0, []float64{1, 2}, 10)
	assert.False(t, ok)
}

func TestPPGProcessor_InsufficientDataIsNoop(t *testing.T) {
	p := NewPPGProcessor()
	frame, ok := p.Process(0, make([]float64, 10), make([]float64, 10))
	assert.False(t, ok)
	assert.Nil(t, frame)
}

func TestPPGProcessor_CarriesForwardLastGoodMetrics(t *testing.T) {
	p := NewPPGProcessor()
	red := sineWave(1.2, ppgFs, ppgMinSamples)
	ir := sineWave(1.2, ppgFs, ppgMinSamples)

	first, ok := p.Process(1.0, red, ir)
	require.True(t, ok)

	flat := make([]float64, ppgMinSamples)
	second, ok := p.Process(2.0, flat, flat)
	require.True(t, ok)

	if first.SignalQuality == QualityGood {
		assert.Equal(t, first.BPM, second.BPM)
	}
}

func TestDetectPeaks_FindsEvenlySpacedPeaks(t *testing.T) {
	data := sineWave(1.0, 50, 500) // 1 Hz sine at 50 Hz sample rate: peak every 50 samples
	peaks := detectPeaks(data, 30)
	assert.GreaterOrEqual(t, len(peaks), 5)
}

func TestGradient_CentralDifference(t *testing.T) {
	g := gradient([]float64{0, 2, 4, 6})
	require.Len(t, g, 4)
	assert.Equal(t, 2.0, g[0])
	assert.Equal(t, 2.0, g[1])
	assert.Equal(t, 2.0, g[3])
}

func TestMedianAbsoluteDeviation_Constant(t *testing.T) {
	assert.Equal(t, 0.0, medianAbsoluteDeviation([]float64{5, 5, 5, 5}))
}

func TestWelchPSD_DCSignalHasZeroFrequencyPower(t *testing.T) {
	data := make([]float64, 64)
	for i := range data {
		data[i] = 1.0
	}
	freqs, psd := welchPSD(data, 250, 32)
	require.NotEmpty(t, freqs)
	assert.Equal(t, 0.0, freqs[0])
	assert.Greater(t, psd[0], 0.0)
}

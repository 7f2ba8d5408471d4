package dsp

import "math"

const accMinSamples = 30

// ProcessACC implements the accelerometer pipeline:
// per-axis gradient, movement magnitude stats, and activity
// classification.
func ProcessACC(timestamp float64, x, y, z []float64) (*ACCFrame, bool) {
	if len(x) < accMinSamples {
		return nil, false
	}

	dx := gradient(x)
	dy := gradient(y)
	dz := gradient(z)

	magnitude := make([]float64, len(dx))
	for i := range magnitude {
		magnitude[i] = math.Sqrt(dx[i]*dx[i] + dy[i]*dy[i] + dz[i]*dz[i])
	}

	avg := mean(magnitude)
	std := stddev(magnitude)
	max := 0.0
	for _, v := range magnitude {
		if v > max {
			max = v
		}
	}

	var state string
	switch {
	case avg < 200:
		state = "stationary"
	case avg < 600:
		state = "sitting"
	case avg < 1000:
		state = "walking"
	default:
		state = "running"
	}

	return &ACCFrame{
		Timestamp:     timestamp,
		XChange:       dx,
		YChange:       dy,
		ZChange:       dz,
		AvgMovement:   avg,
		StdMovement:   std,
		MaxMovement:   max,
		ActivityState: state,
	}, true
}

// gradient computes the central-difference first derivative, matching
// numpy.gradient's one-sided edges.
func gradient(data []float64) []float64 {
	n := len(data)
	out := make([]float64, n)
	if n == 1 {
		return out
	}
	out[0] = data[1] - data[0]
	out[n-1] = data[n-1] - data[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (data[i+1] - data[i-1]) / 2
	}
	return out
}

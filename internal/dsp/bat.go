package dsp

// ProcessBAT implements the battery pipeline: mean level
// over the full buffer, bucketed into high/medium/low.
func ProcessBAT(timestamp float64, levels []float64, requiredSamples int) (*BatFrame, bool) {
	if len(levels) < requiredSamples {
		return nil, false
	}

	avg := mean(levels)
	var status string
	switch {
	case avg >= 80:
		status = "high"
	case avg >= 20:
		status = "medium"
	default:
		status = "low"
	}

	return &BatFrame{
		Timestamp:     timestamp,
		BatteryLevel:  avg,
		BatteryStatus: status,
	}, true
}

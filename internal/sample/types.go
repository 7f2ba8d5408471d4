// Package sample defines the per-sensor sample types and the bounded,
// drop-oldest ring buffer they flow through on the way from the radio to
// the emitters.
package sample

// EEG holds one decoded two-channel EEG reading.
type EEG struct {
	Timestamp  float64 // seconds
	Ch1uV      float64
	Ch2uV      float64
	LeadOffCh1 bool
	LeadOffCh2 bool
}

// PPG holds one decoded red/infrared photoplethysmography reading.
type PPG struct {
	Timestamp float64
	Red       uint32 // 24-bit unsigned
	IR        uint32
}

// ACC holds one decoded 3-axis accelerometer reading.
type ACC struct {
	Timestamp float64
	X, Y, Z   int16
}

// Battery holds one battery level reading.
type Battery struct {
	Timestamp    float64
	LevelPercent uint8
}

// Sensor identifies which of the four acquisition pipelines a sample or
// frame belongs to.
type Sensor string

const (
	EEGSensor Sensor = "eeg"
	PPGSensor Sensor = "ppg"
	ACCSensor Sensor = "acc"
	BatSensor Sensor = "bat"
)

// Raw-buffer capacities are hard: never resized at runtime.
const (
	EEGRawCapacity    = 2000
	PPGRawCapacity    = 1000
	ACCRawCapacity    = 1000
	BatRawCapacity    = 100
	ProcessedCapacity = 1000
)

// Analysis-buffer capacities: the window each DSP worker slides over,
// distinct from the broadcast raw-buffer capacities above (the
// acquisition path writes every sample into both). These mirror
// the device firmware's expected windows exactly.
const (
	EEGAnalysisCapacity = 2000
	PPGAnalysisCapacity = 3000
	ACCAnalysisCapacity = 150
	BatAnalysisCapacity = 50
)

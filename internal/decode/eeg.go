package decode

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/lxb/internal/sample"
)

const (
	eegRecordLen = 7
	eegRate      = 250.0

	// eegVoltScale converts a 24-bit two's-complement raw ADC reading to
	// microvolts: raw * Vref / gain / fullScale * 1e6.
	eegVref      = 4.033
	eegGain      = 12.0
	eegFullScale = float64(1<<23 - 1)
)

// EEG decodes one EEG notification packet. Returns nil if the packet is
// header-only (zero samples, not an error) or if it fails validation.
func EEG(logger *logrus.Logger, packet []byte, hook Hook[sample.EEG], errHook ErrorHook) []sample.EEG {
	if len(packet) < headerLen {
		logShort(logger, "eeg", len(packet), headerLen, errHook)
		return nil
	}

	payload := packet[headerLen:]
	if len(payload)%eegRecordLen != 0 {
		logMalformed(logger, "eeg", len(packet), errHook)
		return nil
	}

	n := len(payload) / eegRecordLen
	if n == 0 {
		return nil
	}

	base := baseTimestamp(readTick(packet))
	out := make([]sample.EEG, n)
	for i := 0; i < n; i++ {
		rec := payload[i*eegRecordLen : (i+1)*eegRecordLen]
		flags := rec[0]
		ch1Raw := int24(rec[1:4])
		ch2Raw := int24(rec[4:7])

		s := sample.EEG{
			Timestamp:  base + float64(i)/eegRate,
			Ch1uV:      eegToMicrovolts(ch1Raw),
			Ch2uV:      eegToMicrovolts(ch2Raw),
			LeadOffCh1: flags&0x01 != 0,
			LeadOffCh2: flags&0x04 != 0,
		}
		if hook != nil {
			hook(&s)
		}
		out[i] = s
	}
	return out
}

func eegToMicrovolts(raw int32) float64 {
	return float64(raw) * eegVref / eegGain / eegFullScale * 1e6
}

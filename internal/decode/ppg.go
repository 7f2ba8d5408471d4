package decode

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/lxb/internal/sample"
)

const (
	ppgRecordLen = 6
	ppgRate      = 50.0

	// ppgTickScale reinterprets the same 32768 Hz tick as milliseconds by
	// dividing by 32.768*1000 instead of 32768. This differs from EEG/ACC
	// scaling but matches the device firmware and every recording made
	// with it; do not "fix" without device-side confirmation.
	ppgTickScale = 32.768 * 1000
)

// PPG decodes one PPG notification packet.
func PPG(logger *logrus.Logger, packet []byte, hook Hook[sample.PPG], errHook ErrorHook) []sample.PPG {
	if len(packet) < headerLen {
		logShort(logger, "ppg", len(packet), headerLen, errHook)
		return nil
	}

	payload := packet[headerLen:]
	if len(payload)%ppgRecordLen != 0 {
		logMalformed(logger, "ppg", len(packet), errHook)
		return nil
	}

	n := len(payload) / ppgRecordLen
	if n == 0 {
		return nil
	}

	base := float64(readTick(packet)) / ppgTickScale
	out := make([]sample.PPG, n)
	for i := 0; i < n; i++ {
		rec := payload[i*ppgRecordLen : (i+1)*ppgRecordLen]
		s := sample.PPG{
			Timestamp: base + float64(i)/ppgRate,
			Red:       uint24(rec[0:3]),
			IR:        uint24(rec[3:6]),
		}
		if hook != nil {
			hook(&s)
		}
		out[i] = s
	}
	return out
}

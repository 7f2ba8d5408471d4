package decode

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
	"github.com/srg/lxb/internal/sample"
)

const (
	accRecordLen = 6
	accRate      = 30.0
)

// ACC decodes one accelerometer notification packet.
func ACC(logger *logrus.Logger, packet []byte, hook Hook[sample.ACC], errHook ErrorHook) []sample.ACC {
	if len(packet) < headerLen {
		logShort(logger, "acc", len(packet), headerLen, errHook)
		return nil
	}

	payload := packet[headerLen:]
	if len(payload)%accRecordLen != 0 {
		logMalformed(logger, "acc", len(packet), errHook)
		return nil
	}

	n := len(payload) / accRecordLen
	if n == 0 {
		return nil
	}

	base := baseTimestamp(readTick(packet))
	out := make([]sample.ACC, n)
	for i := 0; i < n; i++ {
		rec := payload[i*accRecordLen : (i+1)*accRecordLen]
		s := sample.ACC{
			Timestamp: base + float64(i)/accRate,
			X:         int16(binary.LittleEndian.Uint16(rec[0:2])),
			Y:         int16(binary.LittleEndian.Uint16(rec[2:4])),
			Z:         int16(binary.LittleEndian.Uint16(rec[4:6])),
		}
		if hook != nil {
			hook(&s)
		}
		out[i] = s
	}
	return out
}

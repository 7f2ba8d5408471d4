package decode

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/sample"
)

// Battery decodes one battery notification packet. Unlike the other
// sensors, a battery packet carries a single sample with no per-sample
// device tick; it is timestamped at wall-clock arrival.
func Battery(logger *logrus.Logger, packet []byte, clk clock.Clock, hook Hook[sample.Battery], errHook ErrorHook) []sample.Battery {
	if len(packet) < 1 {
		logShort(logger, "bat", len(packet), 1, errHook)
		return nil
	}

	s := sample.Battery{
		Timestamp:    float64(clk.Now().UnixNano()) / 1e9,
		LevelPercent: packet[0],
	}
	if hook != nil {
		hook(&s)
	}
	return []sample.Battery{s}
}

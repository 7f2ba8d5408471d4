package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srg/lxb/internal/clock"
)

func TestRegisterAndGet(t *testing.T) {
	r := New(clock.NewFake(time.Now()), filepath.Join(t.TempDir(), "registry.yaml"))
	r.Register("LXB-01", "AA:BB:CC:DD:EE:01")

	e, ok := r.Get("LXB-01")
	require.True(t, ok)
	require.Equal(t, "AA:BB:CC:DD:EE:01", e.Address)
	require.Equal(t, 1, r.Len())
}

func TestRebindByName(t *testing.T) {
	r := New(clock.NewFake(time.Now()), filepath.Join(t.TempDir(), "registry.yaml"))
	r.Register("LXB-01", "AA:BB:CC:DD:EE:01")

	ok := r.RebindByName("LXB-01", "02:11:22:33:44:55")
	require.True(t, ok)

	e, _ := r.Get("LXB-01")
	require.Equal(t, "02:11:22:33:44:55", e.Address)

	require.False(t, r.RebindByName("unknown", "x"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	r1 := New(clock.NewFake(time.Now()), path)
	r1.Register("LXB-01", "AA:BB:CC:DD:EE:01")
	r1.Register("LXB-02", "AA:BB:CC:DD:EE:02")
	require.NoError(t, r1.Save())

	r2 := New(clock.NewFake(time.Now()), path)
	require.NoError(t, r2.Load())
	require.Equal(t, 2, r2.Len())

	e, ok := r2.Get("LXB-02")
	require.True(t, ok)
	require.Equal(t, "AA:BB:CC:DD:EE:02", e.Address)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	r := New(clock.NewFake(time.Now()), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, r.Load())
	require.Equal(t, 0, r.Len())
}

func TestCooldownAfterConsecutiveFailures(t *testing.T) {
	fake := clock.NewFake(time.Now())
	r := New(fake, filepath.Join(t.TempDir(), "registry.yaml"))
	r.Register("LXB-01", "AA:BB:CC:DD:EE:01")

	r.RecordFailure("LXB-01", 3, 60*time.Second)
	require.False(t, r.InCooldown("LXB-01"), "below threshold")
	r.RecordFailure("LXB-01", 3, 60*time.Second)
	require.False(t, r.InCooldown("LXB-01"))
	r.RecordFailure("LXB-01", 3, 60*time.Second)
	require.True(t, r.InCooldown("LXB-01"), "at threshold, in cooldown")

	fake.Advance(61 * time.Second)
	require.False(t, r.InCooldown("LXB-01"), "cooldown expired")

	r.RecordFailure("LXB-01", 3, 60*time.Second)
	r.RecordFailure("LXB-01", 3, 60*time.Second)
	r.RecordFailure("LXB-01", 3, 60*time.Second)
	require.True(t, r.InCooldown("LXB-01"))

	r.RecordSuccess("LXB-01")
	require.False(t, r.InCooldown("LXB-01"), "success clears cooldown")
}

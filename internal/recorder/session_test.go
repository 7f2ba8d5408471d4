package recorder

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/lxb/internal/clock"
	"github.com/srg/lxb/internal/sample"
)

func startTestSession(t *testing.T, format Format) (*Session, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1000, 0))
	s, err := Start(clk, t.TempDir(), "t1", "dev1", format)
	require.NoError(t, err)
	return s, clk
}

func TestSession_JSONRoundTrip(t *testing.T) {
	s, clk := startTestSession(t, FormatJSON)

	want := []sample.EEG{
		{Timestamp: 2.000, Ch1uV: 0.039, Ch2uV: -0.039},
		{Timestamp: 2.004, Ch1uV: 0.040, Ch2uV: -0.040},
	}
	for _, v := range want {
		require.NoError(t, s.Offer("dev1_eeg_raw", v))
	}
	clk.Advance(2 * time.Second)
	mf, err := s.Stop()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, mf.DurationSec, 1e-9)

	data, err := os.ReadFile(filepath.Join(s.Dir(), "dev1_eeg_raw.json"))
	require.NoError(t, err)
	var got []sample.EEG
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got)
}

func TestSession_EmptyStreamStillClosesAsValidJSON(t *testing.T) {
	s, _ := startTestSession(t, FormatJSON)
	_, err := s.streamFor("dev1_bat")
	require.NoError(t, err)
	_, err = s.Stop()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.Dir(), "dev1_bat.json"))
	require.NoError(t, err)
	var got []interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Empty(t, got)
}

func TestSession_CSVHeaderFromFieldNames(t *testing.T) {
	s, _ := startTestSession(t, FormatCSV)

	type row struct {
		Timestamp float64 `json:"timestamp"`
		Level     uint8   `json:"level_percent"`
	}
	require.NoError(t, s.Offer("dev1_bat", row{Timestamp: 1, Level: 88}))
	require.NoError(t, s.Offer("dev1_bat", row{Timestamp: 2, Level: 87}))
	_, err := s.Stop()
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(s.Dir(), "dev1_bat.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"level_percent", "timestamp"}, records[0])
	assert.Equal(t, "88", records[1][0])
}

func TestSession_StreamNameSanitized(t *testing.T) {
	s, _ := startTestSession(t, FormatJSON)
	require.NoError(t, s.Offer("AA:BB:CC_eeg raw", map[string]int{"x": 1}))
	_, err := s.Stop()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(s.Dir(), "AA_BB_CC_eeg_raw.json"))
	assert.NoError(t, err)
}

func TestSession_ManifestCountsBytesPerStream(t *testing.T) {
	s, _ := startTestSession(t, FormatJSON)
	require.NoError(t, s.Offer("dev1_eeg_raw", map[string]int{"x": 1}))
	require.NoError(t, s.Offer("dev1_ppg_raw", map[string]int{"y": 2}))
	mf, err := s.Stop()
	require.NoError(t, err)

	require.Len(t, mf.Files, 2)
	var total int64
	for stem, n := range mf.Files {
		info, err := os.Stat(filepath.Join(s.Dir(), stem+".json"))
		require.NoError(t, err)
		assert.EqualValues(t, info.Size(), n, stem)
		total += n
	}
	assert.Equal(t, total, mf.TotalBytes)
}

func TestManager_StopTwiceReturnsSameManifest(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	m := NewManager(clk, t.TempDir(), nil)
	_, err := m.StartRecording("t1", "dev1", FormatJSON)
	require.NoError(t, err)

	first, err := m.StopRecording()
	require.NoError(t, err)
	second, err := m.StopRecording()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestManager_OfferWithoutActiveSessionIsNoop(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	m := NewManager(clk, t.TempDir(), nil)
	assert.NotPanics(t, func() { m.Offer("dev1_eeg_raw", map[string]int{"x": 1}) })
}

func TestManager_SecondStartWhileActiveFails(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	m := NewManager(clk, t.TempDir(), nil)
	_, err := m.StartRecording("t1", "dev1", FormatJSON)
	require.NoError(t, err)
	_, err = m.StartRecording("t2", "dev1", FormatJSON)
	assert.Error(t, err)
}

func TestManager_TimestampSessionNameWhenEmpty(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	m := NewManager(clk, t.TempDir(), nil)
	s, err := m.StartRecording("", "dev1", FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "20260304_050607", s.Name())
}

func TestExport_ArchiveMirrorsSessionDir(t *testing.T) {
	s, _ := startTestSession(t, FormatJSON)
	require.NoError(t, s.Offer("dev1_eeg_raw", map[string]int{"x": 1}))
	_, err := s.Stop()
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "t1.zip")
	require.NoError(t, Export(s.Dir(), dest))

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
		rc, err := f.Open()
		require.NoError(t, err)
		onDisk, err := os.ReadFile(filepath.Join(s.Dir(), f.Name))
		require.NoError(t, err)
		fromZip, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, onDisk, fromZip, f.Name)
	}
	assert.True(t, names["dev1_eeg_raw.json"])
	assert.True(t, names["meta.json"])
}

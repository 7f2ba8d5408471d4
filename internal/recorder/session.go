// Package recorder captures raw and processed frames to per-session
// files on disk and supports exporting a finished session
// as a zip archive.
package recorder

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/srg/lxb/internal/clock"
)

// Format selects the per-stream file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeStream turns an arbitrary stream name into a safe filename
// stem, matching any non [A-Za-z0-9_-] character to "_".
func sanitizeStream(stream string) string {
	return unsafeFilenameChars.ReplaceAllString(stream, "_")
}

// Manifest is written as "meta.json" on Stop.
type Manifest struct {
	SessionName string           `json:"session_name"`
	DeviceID    string           `json:"device_id"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	DurationSec float64          `json:"duration_sec"`
	Files       map[string]int64 `json:"files"` // stream -> byte count
	TotalBytes  int64            `json:"total_bytes"`
}

// streamFile is a lazily-opened, per-stream writer. JSON streams are
// written as a manually-maintained array (leading "[", comma-separated
// elements, trailing "]" on Close) since elements arrive one at a time
// over the session's lifetime; CSV streams write a header derived from
// the first sample's JSON field names.
type streamFile struct {
	mu         sync.Mutex
	f          *os.File
	format     Format
	csvWriter  *csv.Writer
	csvHeader  []string
	wroteFirst bool
	bytes      int64
}

func (s *streamFile) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wroteFirst {
		n, err := s.f.WriteString("[")
		if err != nil {
			return err
		}
		s.bytes += int64(n)
		s.wroteFirst = true
	} else {
		n, err := s.f.WriteString(",")
		if err != nil {
			return err
		}
		s.bytes += int64(n)
	}

	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	n, err := s.f.Write(enc)
	s.bytes += int64(n)
	return err
}

func (s *streamFile) writeCSV(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, fields, err := csvRow(v)
	if err != nil {
		return err
	}
	if s.csvWriter == nil {
		s.csvWriter = csv.NewWriter(s.f)
		s.csvHeader = fields
		if err := s.csvWriter.Write(fields); err != nil {
			return err
		}
	}
	if err := s.csvWriter.Write(row); err != nil {
		return err
	}
	s.csvWriter.Flush()
	s.bytes += int64(len(row))
	return s.csvWriter.Error()
}

func (s *streamFile) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatJSON {
		if !s.wroteFirst {
			s.f.WriteString("[")
		}
		s.f.WriteString("]")
	} else if s.csvWriter != nil {
		s.csvWriter.Flush()
	}
	if info, err := s.f.Stat(); err == nil {
		s.bytes = info.Size()
	}
	return s.f.Close()
}

// Session owns one recording's directory, open stream files, and
// manifest. The Session exclusively owns its file handles and
// manifest; emitters only ever call Offer.
type Session struct {
	clk       clock.Clock
	dir       string
	name      string
	deviceID  string
	format    Format
	startTime time.Time

	mu      sync.Mutex
	streams map[string]*streamFile
	closed  bool
}

// Start creates a new session directory under root named name (or a
// clock-derived timestamp if name is empty) and returns the open
// Session.
func Start(clk clock.Clock, root, name, deviceID string, format Format) (*Session, error) {
	now := clk.Now()
	if name == "" {
		name = now.UTC().Format("20060102_150405")
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create session dir: %w", err)
	}
	return &Session{
		clk:       clk,
		dir:       dir,
		name:      name,
		deviceID:  deviceID,
		format:    format,
		startTime: now,
		streams:   make(map[string]*streamFile),
	}, nil
}

// Name returns the session's directory name.
func (s *Session) Name() string { return s.name }

// Dir returns the session's directory path.
func (s *Session) Dir() string { return s.dir }

// Offer appends one sample or frame to streamName's file, opening it
// lazily on first use. No sample offered here is ever silently dropped
// short of a real filesystem error, which is returned and logged by the
// caller (Manager.Offer) rather than panicking here.
func (s *Session) Offer(streamName string, v interface{}) error {
	sf, err := s.streamFor(streamName)
	if err != nil {
		return err
	}
	if s.format == FormatCSV {
		return sf.writeCSV(v)
	}
	return sf.writeJSON(v)
}

func (s *Session) streamFor(streamName string) (*streamFile, error) {
	stem := sanitizeStream(streamName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("recorder: session %q already stopped", s.name)
	}
	if sf, ok := s.streams[stem]; ok {
		return sf, nil
	}

	ext := "json"
	if s.format == FormatCSV {
		ext = "csv"
	}
	f, err := os.Create(filepath.Join(s.dir, stem+"."+ext))
	if err != nil {
		return nil, fmt.Errorf("recorder: open stream %q: %w", streamName, err)
	}
	sf := &streamFile{f: f, format: s.format}
	s.streams[stem] = sf
	return sf, nil
}

// Stop closes every open stream file and writes meta.json.
func (s *Session) Stop() (*Manifest, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("recorder: session %q already stopped", s.name)
	}
	s.closed = true
	streams := make(map[string]*streamFile, len(s.streams))
	for k, v := range s.streams {
		streams[k] = v
	}
	s.mu.Unlock()

	files := make(map[string]int64, len(streams))
	for stem, sf := range streams {
		if err := sf.close(); err != nil {
			return nil, fmt.Errorf("recorder: close stream %q: %w", stem, err)
		}
		files[stem] = sf.bytes
	}

	end := s.clk.Now()
	var total int64
	for _, n := range files {
		total += n
	}
	m := &Manifest{
		SessionName: s.name,
		DeviceID:    s.deviceID,
		StartTime:   s.startTime,
		EndTime:     end,
		DurationSec: end.Sub(s.startTime).Seconds(),
		Files:       files,
		TotalBytes:  total,
	}

	mf, err := os.Create(filepath.Join(s.dir, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("recorder: write manifest: %w", err)
	}
	defer mf.Close()
	enc := json.NewEncoder(mf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("recorder: encode manifest: %w", err)
	}
	return m, nil
}

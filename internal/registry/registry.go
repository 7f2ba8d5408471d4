// Package registry holds the set of known (address, name) device pairs
// the Supervisor auto-connects to, and rebinds a device's address in
// place when the same name reappears under a different address on a
// later scan.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"gopkg.in/yaml.v3"

	"github.com/srg/lxb/internal/clock"
)

// Entry is one registered device plus the Supervisor's auto-connect
// cooldown bookkeeping for it.
type Entry struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`

	// ConsecutiveFailures and CooldownUntil are runtime-only state, not
	// persisted: a restart should not carry a stale cooldown forward.
	ConsecutiveFailures int       `yaml:"-"`
	CooldownUntil       time.Time `yaml:"-"`
}

// file is the on-disk shape of registry.yaml.
type file struct {
	Devices []Entry `yaml:"devices"`
}

// Registry is the persisted store of known devices, keyed by normalized
// name rather than address: a device whose BLE address changes
// (cross-platform reassignment) but whose name matches is rebound in
// place, so name is the registry's stable key.
type Registry struct {
	clk  clock.Clock
	path string

	entries *hashmap.Map[string, *Entry]

	mu sync.Mutex // guards Save against concurrent writers
}

// New creates a Registry persisted at path (typically
// "<data-root>/registry.yaml"). It does not load from disk; call Load.
func New(clk clock.Clock, path string) *Registry {
	if clk == nil {
		clk = clock.System{}
	}
	return &Registry{clk: clk, path: path, entries: hashmap.New[string, *Entry]()}
}

func normalize(name string) string { return name }

// Load reads registry.yaml from disk, if present. A missing file is not
// an error: a fresh registry starts empty.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: read %q: %w", r.path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("registry: parse %q: %w", r.path, err)
	}
	for i := range f.Devices {
		e := f.Devices[i]
		r.entries.Set(normalize(e.Name), &e)
	}
	return nil
}

// Save persists the registry to registry.yaml, sorted by name for a
// stable diff between writes.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var f file
	r.entries.Range(func(_ string, e *Entry) bool {
		f.Devices = append(f.Devices, Entry{Name: e.Name, Address: e.Address})
		return true
	})
	sort.Slice(f.Devices, func(i, j int) bool { return f.Devices[i].Name < f.Devices[j].Name })
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("registry: write %q: %w", r.path, err)
	}
	return nil
}

// Register adds or overwrites a known device by name.
func (r *Registry) Register(name, address string) {
	r.entries.Set(normalize(name), &Entry{Name: name, Address: address})
}

// Get returns the registered entry for name, if any.
func (r *Registry) Get(name string) (Entry, bool) {
	e, ok := r.entries.Get(normalize(name))
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Devices returns every registered entry. Order is unspecified
// (hashmap iteration order).
func (r *Registry) Devices() []Entry {
	out := make([]Entry, 0, r.entries.Len())
	r.entries.Range(func(_ string, e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int { return int(r.entries.Len()) }

// RebindByName updates the registered address for name in place,
// returning true if an entry existed to update.
func (r *Registry) RebindByName(name, newAddress string) bool {
	e, ok := r.entries.Get(normalize(name))
	if !ok {
		return false
	}
	e.Address = newAddress
	return true
}

// RecordFailure increments name's consecutive-failure counter and, once
// it reaches threshold, puts the device in cooldown until now+duration.
func (r *Registry) RecordFailure(name string, threshold int, duration time.Duration) {
	e, ok := r.entries.Get(normalize(name))
	if !ok {
		return
	}
	e.ConsecutiveFailures++
	if e.ConsecutiveFailures >= threshold {
		e.CooldownUntil = r.clk.Now().Add(duration)
	}
}

// RecordSuccess clears name's failure counter and cooldown on a
// successful connect.
func (r *Registry) RecordSuccess(name string) {
	e, ok := r.entries.Get(normalize(name))
	if !ok {
		return
	}
	e.ConsecutiveFailures = 0
	e.CooldownUntil = time.Time{}
}

// InCooldown reports whether name is currently skipped by the
// auto-connect sweep.
func (r *Registry) InCooldown(name string) bool {
	e, ok := r.entries.Get(normalize(name))
	if !ok {
		return false
	}
	return !e.CooldownUntil.IsZero() && r.clk.Now().Before(e.CooldownUntil)
}

// Package cache persists the static part of a battery record between runs.
package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TTL is how long an entry stays valid after it was written.
const TTL = 24 * time.Hour

var (
	// ErrMiss is returned by Lookup when there is no usable entry.
	ErrMiss = errors.New("cache miss")
	// ErrCorrupt is returned by Lookup when the file exists but cannot be
	// read or decoded.
	ErrCorrupt = errors.New("cache corrupt")
)

// Entry is the cached static identity of the battery. Capacities are in mWh.
type Entry struct {
	Manufacturer       string    `json:"manufacturer,omitempty"`
	Serial             string    `json:"serial,omitempty"`
	Chemistry          string    `json:"chemistry,omitempty"`
	Name               string    `json:"name,omitempty"`
	DesignCapacity     *int      `json:"designCapacity,omitempty"`
	FullChargeCapacity *int      `json:"fullChargeCapacity,omitempty"`
	CycleCount         *int      `json:"cycleCount,omitempty"`
	CycleEstimated     bool      `json:"cycleEstimated,omitempty"`
	RatedCycleLife     int       `json:"ratedCycleLife,omitempty"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// File is a JSON file backed cache. Load and Save are safe for concurrent
// use, but the daemon only ever writes through the orchestrator.
type File struct {
	path string
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// Option configures a File.
type Option func(*File)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(f *File) {
		f.now = now
	}
}

// WithTTL overrides TTL.
func WithTTL(ttl time.Duration) Option {
	return func(f *File) {
		f.ttl = ttl
	}
}

func NewFile(path string, opts ...Option) *File {
	f := &File{
		path: path,
		ttl:  TTL,
		now:  time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Path returns the cache file location.
func (f *File) Path() string {
	return f.path
}

// Load returns the cached entry if it exists and is younger than the TTL.
// A missing, unreadable or corrupt file is a cache miss, never an error.
func (f *File) Load() (*Entry, bool) {
	e, err := f.Lookup()
	return e, err == nil
}

// Lookup is Load with the reason for a miss: ErrMiss or ErrCorrupt.
func (f *File) Lookup() (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		logrus.WithError(err).WithField("path", f.path).Warn("failed to read cache, ignoring it")
		return nil, pkgerrors.Wrapf(ErrCorrupt, "%v", err)
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		logrus.WithError(err).WithField("path", f.path).Warn("cache is corrupt, ignoring it")
		return nil, pkgerrors.Wrapf(ErrCorrupt, "%v", err)
	}

	age := f.now().Sub(e.LastUpdated)
	if e.LastUpdated.IsZero() || age < 0 || age >= f.ttl {
		logrus.WithFields(logrus.Fields{
			"path":        f.path,
			"lastUpdated": e.LastUpdated.Format(time.RFC3339),
		}).Debug("cache is stale")
		return nil, ErrMiss
	}

	return &e, nil
}

// Save stamps e with the current time and replaces the cache file
// atomically.
func (f *File) Save(e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Round to strip the monotonic reading so the stored value is what we compare against.
	e.LastUpdated = f.now().Round(0)

	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode cache entry")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create cache directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.json")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to sync %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to chmod %s", tmpPath)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace %s", f.path)
	}

	return nil
}

// Remove deletes the cache file. A missing file is not an error.
func (f *File) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove %s", f.path)
	}
	return nil
}

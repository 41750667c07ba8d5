package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		PollIntervalSeconds:    ptr.To(3),
		LowBatteryPercent:      ptr.To(20),
		HighTemperatureCelsius: ptr.To(55.0),
		AlertCooldownSeconds:   ptr.To(300),
		PrimaryThreshold:       ptr.To(80.0),
		CriticalThreshold:      ptr.To(60.0),
		CachePath:              ptr.To(filepath.Join(DefaultStateDir(), "cache.json")),
		ReportPath:             ptr.To(filepath.Join(DefaultStateDir(), "battery-report.xml")),
		ChargeLogPath:          ptr.To(filepath.Join(DefaultStateDir(), "chargelog.db")),
		// No overrides by default. The built-in table is used.
		ProfilesPath:       ptr.To(""),
		RefreshCron:        ptr.To("@every 1h"),
		AllowNonRootAccess: ptr.To(false),
	}
)

// DefaultStateDir is where the cache, the battery report and the charge log
// live unless configured otherwise.
func DefaultStateDir() string {
	if runtime.GOOS == "windows" {
		base := os.Getenv("ProgramData")
		if base == "" {
			base = `C:\ProgramData`
		}
		return filepath.Join(base, "battlife")
	}
	return "/var/lib/battlife"
}

// DefaultPath is the default location of the config file.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(DefaultStateDir(), "battlife.json")
	}
	return "/etc/battlife.json"
}

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	PollIntervalSeconds    *int      `json:"pollIntervalSeconds,omitempty"`
	LowBatteryPercent      *int      `json:"lowBatteryPercent,omitempty"`
	HighTemperatureCelsius *float64  `json:"highTemperatureCelsius,omitempty"`
	AlertCooldownSeconds   *int      `json:"alertCooldownSeconds,omitempty"`
	PrimaryThreshold       *float64  `json:"primaryThreshold,omitempty"`
	CriticalThreshold      *float64  `json:"criticalThreshold,omitempty"`
	CachePath              *string   `json:"cachePath,omitempty"`
	ReportPath             *string   `json:"reportPath,omitempty"`
	ChargeLogPath          *string   `json:"chargeLogPath,omitempty"`
	ProfilesPath           *string   `json:"profilesPath,omitempty"`
	ReportCommand          *[]string `json:"reportCommand,omitempty"`
	RefreshCron            *string   `json:"refreshCron,omitempty"`
	AllowNonRootAccess     *bool     `json:"allowNonRootAccess,omitempty"`
	CycleCountOverride     *int      `json:"cycleCountOverride,omitempty"`
}

// NewRawFileConfigFromConfig returns the effective values of c, defaults
// included.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		PollIntervalSeconds:    ptr.To(int(c.PollInterval() / time.Second)),
		LowBatteryPercent:      ptr.To(c.LowBatteryPercent()),
		HighTemperatureCelsius: ptr.To(c.HighTemperatureCelsius()),
		AlertCooldownSeconds:   ptr.To(int(c.AlertCooldown() / time.Second)),
		PrimaryThreshold:       ptr.To(c.PrimaryThreshold()),
		CriticalThreshold:      ptr.To(c.CriticalThreshold()),
		CachePath:              ptr.To(c.CachePath()),
		ReportPath:             ptr.To(c.ReportPath()),
		ChargeLogPath:          ptr.To(c.ChargeLogPath()),
		ProfilesPath:           ptr.To(c.ProfilesPath()),
		RefreshCron:            ptr.To(c.RefreshCron()),
		AllowNonRootAccess:     ptr.To(c.AllowNonRootAccess()),
		CycleCountOverride:     c.CycleCountOverride(),
	}
	if cmd := c.ReportCommand(); cmd != nil {
		rawConfig.ReportCommand = &cmd
	}

	return rawConfig, nil
}

// Validate rejects values the daemon cannot run with. Unset fields are
// not checked since they fall back to defaults.
func (c *RawFileConfig) Validate() error {
	if c.PollIntervalSeconds != nil && *c.PollIntervalSeconds < 1 {
		return pkgerrors.Errorf("pollIntervalSeconds must be at least 1, got %d", *c.PollIntervalSeconds)
	}
	if c.LowBatteryPercent != nil && (*c.LowBatteryPercent < 0 || *c.LowBatteryPercent > 100) {
		return pkgerrors.Errorf("lowBatteryPercent must be between 0 and 100, got %d", *c.LowBatteryPercent)
	}
	if c.AlertCooldownSeconds != nil && *c.AlertCooldownSeconds < 0 {
		return pkgerrors.Errorf("alertCooldownSeconds must not be negative, got %d", *c.AlertCooldownSeconds)
	}
	for name, v := range map[string]*float64{
		"primaryThreshold":  c.PrimaryThreshold,
		"criticalThreshold": c.CriticalThreshold,
	} {
		if v != nil && (*v <= 0 || *v > 100) {
			return pkgerrors.Errorf("%s must be in (0, 100], got %v", name, *v)
		}
	}
	if c.CycleCountOverride != nil && *c.CycleCountOverride < 0 {
		return pkgerrors.Errorf("cycleCountOverride must not be negative, got %d", *c.CycleCountOverride)
	}
	if c.RefreshCron != nil && *c.RefreshCron != "" {
		if _, err := cron.ParseStandard(*c.RefreshCron); err != nil {
			return pkgerrors.Wrapf(err, "invalid refreshCron %q", *c.RefreshCron)
		}
	}
	return nil
}

// get returns the configured value or the default one.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	if v := field(defaultFileConfig); v != nil {
		return *v
	}

	var zero T
	return zero
}

func (f *File) PollInterval() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.PollIntervalSeconds })) * time.Second
}

func (f *File) LowBatteryPercent() int {
	return get(f, func(c *RawFileConfig) *int { return c.LowBatteryPercent })
}

func (f *File) HighTemperatureCelsius() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.HighTemperatureCelsius })
}

func (f *File) AlertCooldown() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.AlertCooldownSeconds })) * time.Second
}

func (f *File) PrimaryThreshold() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.PrimaryThreshold })
}

func (f *File) CriticalThreshold() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.CriticalThreshold })
}

func (f *File) CachePath() string {
	return get(f, func(c *RawFileConfig) *string { return c.CachePath })
}

func (f *File) ReportPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.ReportPath })
}

func (f *File) ChargeLogPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.ChargeLogPath })
}

func (f *File) ProfilesPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.ProfilesPath })
}

func (f *File) ReportCommand() []string {
	cmd := get(f, func(c *RawFileConfig) *[]string { return c.ReportCommand })
	if cmd == nil {
		return nil
	}
	return append([]string{}, cmd...)
}

func (f *File) RefreshCron() string {
	return get(f, func(c *RawFileConfig) *string { return c.RefreshCron })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) CycleCountOverride() *int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.CycleCountOverride == nil {
		return nil
	}
	return ptr.To(*f.c.CycleCountOverride)
}

func (f *File) SetPollInterval(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}

	if d < time.Second {
		panic("poll interval must be at least 1s")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PollIntervalSeconds = ptr.To(int(d / time.Second))
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

// SetCycleCountOverride pins the cycle count. nil clears it.
func (f *File) SetCycleCountOverride(n *int) {
	if f.c == nil {
		panic("config is nil")
	}

	if n != nil && *n < 0 {
		panic("cycle count override must not be negative")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if n == nil {
		f.c.CycleCountOverride = nil
		return
	}
	f.c.CycleCountOverride = ptr.To(*n)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

// Save replaces the config file atomically, so a crash never leaves a
// truncated config behind.
func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	b, err := json.MarshalIndent(f.c, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config")
	}
	b = append(b, '\n')

	dir := filepath.Dir(f.filepath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".battlife-*.json")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", tmpPath)
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to chmod %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", tmpPath)
	}
	if err := os.Rename(tmpPath, f.filepath); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace file %s", f.filepath)
	}
	tmpPath = ""

	return nil
}

// Path returns the file the config is loaded from.
func (f *File) Path() string {
	return f.filepath
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	fields := logrus.Fields{
		"pollInterval":           f.PollInterval(),
		"lowBatteryPercent":      f.LowBatteryPercent(),
		"highTemperatureCelsius": f.HighTemperatureCelsius(),
		"alertCooldown":          f.AlertCooldown(),
		"primaryThreshold":       f.PrimaryThreshold(),
		"criticalThreshold":      f.CriticalThreshold(),
		"cachePath":              f.CachePath(),
		"reportPath":             f.ReportPath(),
		"chargeLogPath":          f.ChargeLogPath(),
		"profilesPath":           f.ProfilesPath(),
		"reportCommand":          f.ReportCommand(),
		"refreshCron":            f.RefreshCron(),
		"allowNonRootAccess":     f.AllowNonRootAccess(),
	}
	if n := f.CycleCountOverride(); n != nil {
		fields["cycleCountOverride"] = *n
	}
	return fields
}

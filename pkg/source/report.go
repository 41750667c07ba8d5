package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const (
	// ReportMaxAge is how old the diagnostic report may get before it is
	// regenerated.
	ReportMaxAge = time.Hour
	// ReportTimeout bounds one report generation.
	ReportTimeout = 30 * time.Second
	// ReportRetryBackoff is how long a failed generation is not retried.
	ReportRetryBackoff = 5 * time.Minute

	// ReportPathPlaceholder is replaced by the output path in the report
	// command.
	ReportPathPlaceholder = "{path}"
)

// Report reads battery data from a diagnostic report file produced by an
// external tool, regenerating the file when it is missing or stale.
type Report struct {
	path    string
	command []string
	maxAge  time.Duration
	timeout time.Duration
	backoff time.Duration
	run     Runner
	now     func() time.Time

	mu       sync.Mutex
	parsedAt time.Time
	parsed   reportData
	// failedAt is when the last generation failed, zero after a success.
	failedAt  time.Time
	lastError Result[struct{}]
}

type ReportOption func(*Report)

func WithReportRunner(run Runner) ReportOption {
	return func(r *Report) {
		r.run = run
	}
}

func WithReportClock(now func() time.Time) ReportOption {
	return func(r *Report) {
		r.now = now
	}
}

// NewReport creates a report source. With an empty command the report is
// only read, never generated.
func NewReport(path string, command []string, opts ...ReportOption) *Report {
	r := &Report{
		path:    path,
		command: command,
		maxAge:  ReportMaxAge,
		timeout: ReportTimeout,
		backoff: ReportRetryBackoff,
		run:     ExecRunner,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Report) Name() string {
	return "report"
}

type reportData struct {
	Name               string
	Manufacturer       string
	Serial             string
	Chemistry          string
	DesignCapacity     *int
	FullChargeCapacity *int
	CycleCount         *int
}

// load makes sure the report is fresh and returns its parsed content. A
// failed regeneration is reported, but an older report is still used.
func (r *Report) load(ctx context.Context) (reportData, Result[struct{}]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := OK(struct{}{})
	info, err := os.Stat(r.path)
	if err != nil || r.now().Sub(info.ModTime()) > r.maxAge {
		if !r.failedAt.IsZero() && r.now().Sub(r.failedAt) < r.backoff {
			status = r.lastError
		} else {
			status = r.regenerate(ctx)
		}
		info, err = os.Stat(r.path)
	}
	if err != nil {
		if status.Available() {
			status = Unavailable[struct{}]("no report at %s", r.path)
		}
		return reportData{}, status
	}

	if !r.parsedAt.Equal(info.ModTime()) {
		b, err := os.ReadFile(r.path)
		if err != nil {
			return reportData{}, Unavailable[struct{}]("failed to read report: %v", err)
		}
		r.parsed = parseReport(string(b))
		r.parsedAt = info.ModTime()
	}
	return r.parsed, OK(struct{}{})
}

// regenerate runs the generator and remembers a failure so that the other
// field groups of the same acquisition do not wait for it again.
func (r *Report) regenerate(ctx context.Context) Result[struct{}] {
	genErr := r.generate(ctx)
	switch {
	case genErr == nil:
		r.failedAt = time.Time{}
		return OK(struct{}{})
	case errors.Is(genErr, errNoReportCommand):
		return Unavailable[struct{}]("%v", genErr)
	}
	logrus.WithError(genErr).WithField("path", r.path).Warn("failed to generate battery report")
	r.failedAt = r.now()
	r.lastError = Failed[struct{}](powerinfo.ExternalToolFailure, "report generation failed: %v", genErr)
	return r.lastError
}

var errNoReportCommand = errors.New("no report command configured")

// generate runs the report command into a temporary file and moves it into
// place on success, so a killed or failing run never leaves a partial report.
func (r *Report) generate(ctx context.Context) error {
	if len(r.command) == 0 {
		return errNoReportCommand
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	_ = os.Remove(tmp)
	defer os.Remove(tmp)

	args := make([]string, 0, len(r.command)-1)
	for _, a := range r.command[1:] {
		args = append(args, strings.ReplaceAll(a, ReportPathPlaceholder, tmp))
	}

	logrus.WithField("command", r.command[0]).Info("generating battery report")
	if _, err := runWithTimeout(ctx, r.run, r.timeout, r.command[0], args...); err != nil {
		return err
	}
	if _, err := os.Stat(tmp); err != nil {
		return errors.New("report command produced no output file")
	}
	return os.Rename(tmp, r.path)
}

// reportResult returns v when ok, otherwise the failure from load if there
// was one.
func reportResult[T any](status Result[struct{}], v T, ok bool, what string) Result[T] {
	if ok {
		return OK(v)
	}
	if !status.Available() {
		return Failed[T](status.Kind(), "%s", status.Reason())
	}
	return Unavailable[T]("no %s in report", what)
}

func (r *Report) Static(ctx context.Context) Result[StaticInfo] {
	d, status := r.load(ctx)
	info := StaticInfo{
		Name:               d.Name,
		Manufacturer:       d.Manufacturer,
		Serial:             d.Serial,
		DesignCapacity:     positive(d.DesignCapacity),
		FullChargeCapacity: positive(d.FullChargeCapacity),
	}
	return reportResult(status, info, !info.Empty(), "battery identity or capacity")
}

func (r *Report) CycleCount(ctx context.Context, _ CycleHint) Result[CycleReading] {
	d, status := r.load(ctx)
	if d.CycleCount != nil && *d.CycleCount < 0 {
		return Failed[CycleReading](powerinfo.MalformedData, "negative cycle count %d in report", *d.CycleCount)
	}
	ok := d.CycleCount != nil && *d.CycleCount > 0
	var reading CycleReading
	if ok {
		reading.Count = *d.CycleCount
	}
	return reportResult(status, reading, ok, "cycle count")
}

func (r *Report) Chemistry(ctx context.Context) Result[ChemistryReading] {
	d, status := r.load(ctx)
	return reportResult(status, ChemistryReading{Raw: d.Chemistry}, d.Chemistry != "", "chemistry")
}

var reportTags = map[string]*regexp.Regexp{}

func reportTag(name string) *regexp.Regexp {
	if re, ok := reportTags[name]; ok {
		return re
	}
	return regexp.MustCompile(`(?is)<(?:\w+:)?` + name + `\b[^>]*>\s*([^<]*?)\s*</(?:\w+:)?` + name + `\s*>`)
}

func init() {
	for _, t := range []string{"Name", "Id", "Manufacturer", "SerialNumber", "Chemistry", "DesignCapacity", "FullChargeCapacity", "CycleCount"} {
		reportTags[t] = reportTag(t)
	}
}

// tag returns the text of the first element with the given name.
func tag(doc, name string) string {
	m := reportTag(name).FindStringSubmatch(doc)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var reportNumberCleaner = strings.NewReplacer(",", "", "\u00a0", "", " ", "", "mWh", "", "mwh", "")

func reportInt(doc, name string) *int {
	s := tag(doc, name)
	if s == "" {
		return nil
	}
	return normalize.IntPtr(reportNumberCleaner.Replace(s))
}

// parseReport extracts the first battery from the report. It never fails;
// whatever cannot be found stays empty.
func parseReport(doc string) reportData {
	// Only look at the battery section when there is one, so that
	// system-level Manufacturer or Name elements are not picked up.
	if i := strings.Index(strings.ToLower(doc), "<battery>"); i >= 0 {
		doc = doc[i:]
	}
	d := reportData{
		Name:               tag(doc, "Name"),
		Manufacturer:       tag(doc, "Manufacturer"),
		Serial:             tag(doc, "SerialNumber"),
		Chemistry:          tag(doc, "Chemistry"),
		DesignCapacity:     reportInt(doc, "DesignCapacity"),
		FullChargeCapacity: reportInt(doc, "FullChargeCapacity"),
		CycleCount:         reportInt(doc, "CycleCount"),
	}
	if d.Name == "" {
		d.Name = tag(doc, "Id")
	}
	return d
}

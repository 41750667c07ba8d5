// Package engine wires the sources, the cache, the charge log and the
// orchestrator together from a config.
package engine

import (
	"errors"
	"runtime"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/cache"
	"github.com/charlie0129/battlife/pkg/chargelog"
	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/health"
	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/orchestrator"
	"github.com/charlie0129/battlife/pkg/source"
)

// ErrUnsupportedPlatform is the one failure that is never absorbed: there
// are no sources for this operating system.
var ErrUnsupportedPlatform = errors.New("unsupported platform: battlife runs on linux and windows")

// Engine is a ready to use acquisition pipeline.
type Engine struct {
	Orchestrator *orchestrator.Orchestrator
	Projector    health.Projector
	Cache        *cache.File
	// ChargeLog is nil when the log could not be opened, e.g. when running
	// without write access to the state directory.
	ChargeLog *chargelog.Log
}

// Option configures New.
type Option func(*options)

type options struct {
	sources func(source.Options) source.Chains
	run     source.Runner
}

// WithSources replaces the platform source chains, mainly for tests.
func WithSources(f func(source.Options) source.Chains) Option {
	return func(o *options) {
		o.sources = f
	}
}

// WithRunner replaces how external commands are run.
func WithRunner(run source.Runner) Option {
	return func(o *options) {
		o.run = run
	}
}

func New(conf config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.sources == nil {
		if !source.Supported {
			return nil, pkgerrors.Wrapf(ErrUnsupportedPlatform, "GOOS=%s", runtime.GOOS)
		}
		o.sources = source.Defaults
	}

	profiles, err := normalize.LoadProfiles(conf.ProfilesPath())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Cache:     cache.NewFile(conf.CachePath()),
		Projector: health.Projector{InstallDate: source.InstallDate},
	}

	srcOpts := source.Options{
		ReportPath:    conf.ReportPath(),
		ReportCommand: conf.ReportCommand(),
		Run:           o.run,
	}

	if p := conf.ChargeLogPath(); p != "" {
		l, err := chargelog.Open(p)
		if err != nil {
			logrus.WithError(err).WithField("path", p).Warn("charge log unavailable, cycle estimation falls back to capacity only")
		} else {
			e.ChargeLog = l
			srcOpts.ChargeLog = l
		}
	}

	e.Orchestrator = orchestrator.New(o.sources(srcOpts), e.Cache, orchestrator.WithProfiles(profiles))
	return e, nil
}

// Close releases the charge log.
func (e *Engine) Close() error {
	if e.ChargeLog == nil {
		return nil
	}
	return e.ChargeLog.Close()
}

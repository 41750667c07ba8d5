package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/orchestrator"
	"github.com/charlie0129/battlife/pkg/source"
	"github.com/charlie0129/battlife/pkg/utils/ptr"
)

type absent struct{}

func (absent) Name() string { return "absent" }

func (absent) Present(context.Context) source.Result[bool] { return source.OK(false) }

func TestNewWiresChargeLog(t *testing.T) {
	dir := t.TempDir()
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		CachePath:     ptr.To(filepath.Join(dir, "cache.json")),
		ChargeLogPath: ptr.To(filepath.Join(dir, "chargelog.db")),
		ReportPath:    ptr.To(filepath.Join(dir, "report.xml")),
	}, "")

	var got source.Options
	e, err := New(conf, WithSources(func(o source.Options) source.Chains {
		got = o
		return source.Chains{Presence: []source.PresenceDetector{absent{}}}
	}))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	require.NotNil(t, e.ChargeLog)
	assert.NotNil(t, got.ChargeLog)
	assert.Equal(t, filepath.Join(dir, "report.xml"), got.ReportPath)
	assert.Equal(t, filepath.Join(dir, "cache.json"), e.Cache.Path())

	rec := e.Orchestrator.Acquire(context.Background(), orchestrator.Request{})
	assert.False(t, rec.Present)
}

func TestNewWithoutChargeLog(t *testing.T) {
	dir := t.TempDir()
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		CachePath:     ptr.To(filepath.Join(dir, "cache.json")),
		ChargeLogPath: ptr.To(""),
	}, "")

	var got source.Options
	e, err := New(conf, WithSources(func(o source.Options) source.Chains {
		got = o
		return source.Chains{}
	}))
	require.NoError(t, err)
	assert.Nil(t, e.ChargeLog)
	// A nil *chargelog.Log must not end up as a non-nil interface.
	assert.Nil(t, got.ChargeLog)
	assert.NoError(t, e.Close())
}

func TestNewBadProfiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "profiles.toml")
	require.NoError(t, os.WriteFile(p, []byte("[[profile]\nbroken"), 0644))

	conf := config.NewFileFromConfig(&config.RawFileConfig{
		ProfilesPath:  ptr.To(p),
		ChargeLogPath: ptr.To(""),
	}, "")
	_, err := New(conf, WithSources(func(source.Options) source.Chains { return source.Chains{} }))
	assert.Error(t, err)
}

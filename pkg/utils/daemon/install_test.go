package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSystemctl(t *testing.T, fail string) *[]string {
	t.Helper()

	var calls []string
	origPath, origCtl := unitPath, systemctl
	t.Cleanup(func() {
		unitPath, systemctl = origPath, origCtl
	})

	unitPath = filepath.Join(t.TempDir(), "system", unitName)
	systemctl = func(args ...string) error {
		call := strings.Join(args, " ")
		calls = append(calls, call)
		if call == fail {
			return errors.New("unit not loaded")
		}
		return nil
	}
	return &calls
}

func TestUnit(t *testing.T) {
	u := Unit("/usr/local/bin/battlife", "--config=/etc/battlife.json")
	assert.Contains(t, u, "ExecStart=/usr/local/bin/battlife daemon --config=/etc/battlife.json\n")
	assert.Contains(t, u, "ExecReload=/bin/kill -HUP $MAINPID")
	assert.NotContains(t, u, "/path/to")
}

func TestInstallUninstall(t *testing.T) {
	calls := fakeSystemctl(t, "")

	require.NoError(t, install(Unit("/opt/battlife")))
	b, err := os.ReadFile(unitPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "ExecStart=/opt/battlife daemon\n")
	assert.Equal(t, []string{"daemon-reload", "enable --now battlife.service"}, *calls)

	*calls = nil
	require.NoError(t, Uninstall())
	_, err = os.Stat(unitPath)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{"disable --now battlife.service", "daemon-reload"}, *calls)
}

func TestUninstallMissingUnit(t *testing.T) {
	fakeSystemctl(t, "disable --now battlife.service")
	assert.NoError(t, Uninstall())
}

//go:build windows

package source

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows/registry"
)

// InstallDate reads the OS install date from the registry, falling back to
// systeminfo.
func InstallDate() (time.Time, bool) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Windows NT\CurrentVersion`, registry.QUERY_VALUE)
	if err == nil {
		defer k.Close()
		if v, _, err := k.GetIntegerValue("InstallDate"); err == nil && v > 0 {
			return time.Unix(int64(v), 0), true
		}
	}
	logrus.WithError(err).Debug("install date not in registry, trying systeminfo")

	out, err := runWithTimeout(context.Background(), ExecRunner, CLITimeout, "systeminfo")
	if err != nil {
		return time.Time{}, false
	}
	return parseSysteminfoInstallDate(out)
}

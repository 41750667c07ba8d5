// Package daemon installs the battlife daemon as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "battlife.service"

const unitTemplate = `[Unit]
Description=battlife battery telemetry daemon
Documentation=https://github.com/charlie0129/battlife
After=upower.service

[Service]
Type=simple
ExecStart=/path/to/battlife daemon
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5
StateDirectory=battlife

[Install]
WantedBy=multi-user.target
`

var (
	unitPath = filepath.Join("/etc/systemd/system", unitName)

	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

// Unit renders the service unit for exePath. args are passed to the daemon
// subcommand.
func Unit(exePath string, args ...string) string {
	cmd := append([]string{exePath, "daemon"}, args...)
	return strings.ReplaceAll(unitTemplate, "/path/to/battlife daemon", strings.Join(cmd, " "))
}

// Install writes the unit for the current executable, then enables and
// starts it.
func Install(args ...string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("installing the daemon is only supported on linux, not %s", runtime.GOOS)
	}

	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)
	return install(Unit(exePath, args...))
}

func install(unit string) error {
	logrus.Infof("writing systemd unit to %s", unitPath)

	err := os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(unit), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}

	logrus.Infof("starting battlife")
	return systemctl("enable", "--now", unitName)
}

// Uninstall stops and disables the service and removes its unit.
func Uninstall() error {
	logrus.Infof("stopping battlife")

	// The unit may already be gone; disabling it then fails but there is
	// nothing left to stop.
	if err := systemctl("disable", "--now", unitName); err != nil {
		logrus.Warnf("failed to disable %s: %v", unitName, err)
	}

	logrus.Infof("removing systemd unit")

	err := os.Remove(unitPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	return systemctl("daemon-reload")
}

//go:build linux

package source

import (
	"os"
	"time"
)

var installMarkers = []string{
	"/var/log/installer",
	"/lost+found",
	"/etc/machine-id",
}

// InstallDate estimates when the OS was installed from the oldest install
// marker on disk.
func InstallDate() (time.Time, bool) {
	var oldest time.Time
	for _, p := range installMarkers {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if oldest.IsZero() || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}
	return oldest, !oldest.IsZero()
}

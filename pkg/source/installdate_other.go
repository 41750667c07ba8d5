//go:build !linux && !windows

package source

import "time"

func InstallDate() (time.Time, bool) {
	return time.Time{}, false
}

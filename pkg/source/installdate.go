package source

import (
	"bufio"
	"bytes"
	"strings"
	"time"
)

var systeminfoLayouts = []string{
	"1/2/2006, 3:04:05 PM",
	"2/1/2006, 15:04:05",
	"02/01/2006, 15:04:05",
	"2.1.2006, 15:04:05",
	"2006-01-02, 15:04:05",
	"2006/1/2, 15:04:05",
}

// parseSysteminfoInstallDate reads "Original Install Date" from systeminfo
// output. The format follows the system locale, so several layouts are
// tried.
func parseSysteminfoInstallDate(out []byte) (time.Time, bool) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "Original Install Date") {
			continue
		}
		v = strings.TrimSpace(v)
		for _, layout := range systeminfoLayouts {
			if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSysteminfoInstallDate(t *testing.T) {
	out := []byte("Host Name:                 DESKTOP\r\nOriginal Install Date:     1/15/2023, 10:30:00 AM\r\nSystem Boot Time:          2/1/2024, 8:00:00 AM\r\n")
	got, ok := parseSysteminfoInstallDate(out)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2023, 1, 15, 10, 30, 0, 0, time.Local), got)

	_, ok = parseSysteminfoInstallDate([]byte("Original Install Date: someday\r\n"))
	assert.False(t, ok)
}

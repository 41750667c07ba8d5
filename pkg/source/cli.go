package source

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// CLITimeout bounds the secondary cycle count query.
const CLITimeout = 10 * time.Second

// CLICycles asks a command line tool for the cycle count. It is the second
// opinion when the instrumentation and the report have nothing.
type CLICycles struct {
	command []string
	parse   func([]byte) (int, bool)
	run     Runner
	timeout time.Duration
}

func NewCLICycles(command []string, parse func([]byte) (int, bool), run Runner) *CLICycles {
	if run == nil {
		run = ExecRunner
	}
	return &CLICycles{command: command, parse: parse, run: run, timeout: CLITimeout}
}

func (c *CLICycles) Name() string {
	if len(c.command) == 0 {
		return "cli"
	}
	return "cli/" + c.command[0]
}

func (c *CLICycles) CycleCount(ctx context.Context, _ CycleHint) Result[CycleReading] {
	if len(c.command) == 0 {
		return Unavailable[CycleReading]("no command")
	}
	out, err := runWithTimeout(ctx, c.run, c.timeout, c.command[0], c.command[1:]...)
	if err != nil {
		return Failed[CycleReading](powerinfo.ExternalToolFailure, "%v", err)
	}
	n, ok := c.parse(out)
	if !ok {
		return Unavailable[CycleReading]("no cycle count in output")
	}
	if n < 0 {
		return Failed[CycleReading](powerinfo.MalformedData, "negative cycle count %d", n)
	}
	if n == 0 {
		return Unavailable[CycleReading]("cycle count reported as 0")
	}
	return OK(CycleReading{Count: n})
}

var firstInteger = regexp.MustCompile(`-?\d+`)

// ParseFirstInteger returns the first integer in the output.
func ParseFirstInteger(out []byte) (int, bool) {
	m := firstInteger.Find(out)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(m))
	return n, err == nil
}

// ParseUPowerDump reads the charge-cycles line of the first battery in
// `upower --dump` output. "N/A" means the kernel has no counter.
func ParseUPowerDump(out []byte) (int, bool) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || strings.TrimSpace(k) != "charge-cycles" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/battlife/pkg/client"
	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/engine"
)

var (
	logLevel       = "info"
	unixSocketPath = defaultSocketPath()
	configPath     = config.DefaultPath()

	apiClient *client.Client
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

// annotationLocal marks commands that do not talk to the daemon.
const annotationLocal = "battlife/local"

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(config.DefaultStateDir(), "battlife.sock")
	}
	return "/run/battlife.sock"
}

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: battlife daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it? You can also run 'battlife report' without the daemon.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	case errors.Is(err, engine.ErrUnsupportedPlatform):
		fmt.Fprintf(os.Stderr, "\nError: battlife does not support %s/%s\n", runtime.GOOS, runtime.GOARCH)
	}
}

func main() {
	// battlife does not need to use much.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "battlife",
		Short: "battlife reports battery health, cycle count and remaining lifespan",
		Long: `battlife reports battery health, cycle count and remaining lifespan on Linux and Windows laptops.

It collects battery data from every source the operating system offers, falls back between them when one is unavailable, and keeps a live view of the battery in a background daemon.

Website: https://github.com/charlie0129/battlife
Report issues: https://github.com/charlie0129/battlife/issues`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			if cmd.Annotations[annotationLocal] != "" {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. battlife may not work as expected. Reinstall the daemon with this binary to make sure both are the same version.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("battlife daemon is too old to report its version. Reinstall the daemon with this binary.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "battlife daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewReportCommand(),
		NewHealthCommand(),
		NewLifespanCommand(),
		NewCyclesCommand(),
		NewRefreshCommand(),
		NewWatchCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}

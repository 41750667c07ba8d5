package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battlife/pkg/config"
	daemonutils "github.com/charlie0129/battlife/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Install battlife daemon (system-wide)",
		GroupID:     gInstallation,
		Annotations: map[string]string{annotationLocal: "true"},
		Long: `Install battlife daemon as a systemd service (system-wide).

This makes battlife run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the battlife daemon. If you want to allow non-root users, i.e., you, to read battery data from the daemon without sudo, use the --allow-non-root-access flag.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the battlife daemon.")
			} else {
				logrus.Info("only root user is allowed to access the battlife daemon.")
			}

			// The daemon reads the config on start, so it must be saved first.
			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install("--config="+configPath, "--daemon-socket="+unixSocketPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `battlife install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access battlife daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "uninstall",
		Short:       "Uninstall battlife daemon (system-wide)",
		GroupID:     gInstallation,
		Annotations: map[string]string{annotationLocal: "true"},
		Long: `Uninstall battlife daemon from systemd (system-wide).

This stops battlife and removes its service unit.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s and the cache and charge log in %s, in case you want to use `battlife' again. If you want a complete uninstall, you can remove them and battlife itself manually.\n", configPath, config.DefaultStateDir())

			return nil
		},
	}
}

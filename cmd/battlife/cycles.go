package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCyclesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cycles",
		Short:   "Show or override the battery cycle count",
		GroupID: gAdvanced,
		Long: `Show or override the battery cycle count.

Some batteries do not report a cycle count, in which case battlife estimates one. If you know the real count, e.g. from the vendor's tool, you can set it here. A manual count takes precedence over every source until it is cleared.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := apiClient.GetCycleCount()
			if err != nil {
				return fmt.Errorf("failed to get cycle count override: %v", err)
			}
			if n == nil {
				cmd.Println("No cycle count override is set.")
				return nil
			}
			cmd.Printf("Cycle count override: %s\n", bold("%d", *n))
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [count]",
			Short: "Override the cycle count",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				n, err := parseIntArg(args, "cycle count")
				if err != nil {
					return err
				}
				if n < 0 {
					return fmt.Errorf("cycle count must not be negative, got %d", n)
				}

				ret, err := apiClient.SetCycleCount(n)
				if err != nil {
					return fmt.Errorf("failed to set cycle count: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully set cycle count to %d", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the cycle count override",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.ClearCycleCount()
				if err != nil {
					return fmt.Errorf("failed to clear cycle count: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Info("successfully cleared cycle count override")
				return nil
			},
		},
	)

	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battlife/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Follow live battery updates and alerts",
		Long:    `Print a line for every live update from the daemon, and highlight high temperature and low battery alerts. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.SubscribeEvents(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				if err := printEvent(cmd.OutOrStdout(), ev); err != nil {
					logrus.WithError(err).WithField("event", ev.Name).Warn("failed to decode event")
				}
			}

			if ctx.Err() == nil {
				return fmt.Errorf("daemon closed the event stream")
			}
			return nil
		},
	}
}

func printEvent(w io.Writer, ev events.Event) error {
	switch ev.Name {
	case events.BatteryLive:
		u, err := events.DecodeAs[events.LiveUpdate](ev)
		if err != nil {
			return err
		}
		l := u.Live

		line := time.Unix(u.Ts, 0).Format(time.Kitchen)
		if l.Percent != nil {
			line += " " + bold("%3d%%", *l.Percent)
		}
		line += " " + l.State.String()
		if l.PowerW != nil {
			line += fmt.Sprintf(" %+.1f W", *l.PowerW)
		}
		if l.TemperatureC != nil {
			line += fmt.Sprintf(" %.1f °C", *l.TemperatureC)
		}
		_, err = fmt.Fprintln(w, line)
		return err
	case events.BatteryAlert:
		a, err := events.DecodeAs[events.Alert](ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, color.New(color.Bold, color.FgRed).Sprint("ALERT: "+a.Message))
		return err
	case events.BatteryRecord:
		u, err := events.DecodeAs[events.RecordUpdate](ev)
		if err != nil {
			return err
		}
		if u.Forced {
			_, err = fmt.Fprintln(w, color.New(color.Faint).Sprint("battery data refreshed"))
		}
		return err
	}
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/console"
	"github.com/charlie0129/battlife/pkg/engine"
	"github.com/charlie0129/battlife/pkg/orchestrator"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/types"
)

// reportTimeout bounds the in-process acquisition. Generating the battery
// report alone may take 30s.
const reportTimeout = 90 * time.Second

type reportJSON struct {
	Record   *powerinfo.Record    `json:"record"`
	Health   types.HealthResponse `json:"health"`
	Lifespan statusLifespanJSON   `json:"lifespan"`
}

// NewReportCommand runs one acquisition in this process, without the daemon.
func NewReportCommand() *cobra.Command {
	asJSON := false
	force := false

	cmd := &cobra.Command{
		Use:         "report",
		Aliases:     []string{"headless"},
		GroupID:     gBasic,
		Short:       "Print a battery report without the daemon",
		Annotations: map[string]string{annotationLocal: "true"},
		Long: `Read all battery data in this process and print a report, without talking to the daemon.

Some sources need root, e.g. writing the cache and the charge log. Without them the report is still printed; missing data is listed at the end.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			e, err := engine.New(conf)
			if err != nil {
				return err
			}
			defer func() {
				if err := e.Close(); err != nil {
					logrus.Warnf("failed to close charge log: %v", err)
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, reportTimeout)
			defer cancel()

			rec := e.Orchestrator.Acquire(ctx, orchestrator.Request{
				CycleCountOverride: conf.CycleCountOverride(),
				ForceRefresh:       force,
			})
			r := console.NewReport(e.Projector, rec, conf.PrimaryThreshold(), conf.CriticalThreshold())

			if asJSON {
				return printJSON(cmd.OutOrStdout(), reportJSON{
					Record: r.Record,
					Health: r.Health,
					Lifespan: statusLifespanJSON{
						Primary:  &r.Primary,
						Critical: &r.Critical,
					},
				})
			}

			console.Print(cmd.OutOrStdout(), r)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&asJSON, "json", false, "Print the report as JSON")
	f.BoolVar(&force, "force", false, "Ignore cached data")

	return cmd
}

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/console"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/types"
	"github.com/charlie0129/battlife/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: map[string]string{annotationLocal: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

type statusData struct {
	record   *powerinfo.Record
	health   *types.HealthResponse
	primary  *types.LifespanResponse
	critical *types.LifespanResponse
	daemon   *types.StatusResponse
	config   *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	c := config.NewFileFromConfig(conf, "")

	rec, err := apiClient.GetRecord()
	if err != nil {
		return nil, fmt.Errorf("failed to get battery record: %w", err)
	}

	h, err := apiClient.GetHealth()
	if err != nil {
		return nil, fmt.Errorf("failed to get battery health: %w", err)
	}

	primary, err := apiClient.GetLifespan(c.PrimaryThreshold())
	if err != nil {
		return nil, fmt.Errorf("failed to get lifespan: %w", err)
	}

	critical, err := apiClient.GetLifespan(c.CriticalThreshold())
	if err != nil {
		return nil, fmt.Errorf("failed to get lifespan: %w", err)
	}

	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get daemon status: %w", err)
	}

	return &statusData{
		record:   rec,
		health:   h,
		primary:  primary,
		critical: critical,
		daemon:   st,
		config:   conf,
	}, nil
}

type statusJSON struct {
	Record   *powerinfo.Record     `json:"record"`
	Health   *types.HealthResponse `json:"health"`
	Lifespan statusLifespanJSON    `json:"lifespan"`
	Daemon   *types.StatusResponse `json:"daemon"`
	Config   *config.RawFileConfig `json:"configuration"`
}

type statusLifespanJSON struct {
	Primary  *types.LifespanResponse `json:"primary"`
	Critical *types.LifespanResponse `json:"critical"`
}

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the battery status from the daemon",
		Long:    `Get battery identity, capacity, health, cycle count, projected lifespan and live status from the battlife daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), statusJSON{
					Record: data.record,
					Health: data.health,
					Lifespan: statusLifespanJSON{
						Primary:  data.primary,
						Critical: data.critical,
					},
					Daemon: data.daemon,
					Config: data.config,
				})
			}

			console.Print(cmd.OutOrStdout(), console.Report{
				Record:   data.record,
				Health:   *data.health,
				Primary:  *data.primary,
				Critical: *data.critical,
			})

			cmd.Println()
			cmd.Println(bold("Daemon:"))
			cmd.Printf("  Polling: %s\n", bold("%s", data.daemon.Poller))
			for name, next := range data.daemon.NextRuns {
				if next.IsZero() {
					continue
				}
				cmd.Printf("  Next %s: %s\n", name, next.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "health",
		GroupID: gBasic,
		Short:   "Show the battery state of health",
		Long: `Show the battery state of health.

The score blends the remaining capacity with the wear implied by the cycle count. When capacity data is missing no score is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := apiClient.GetHealth()
			if err != nil {
				return fmt.Errorf("failed to get battery health: %w", err)
			}

			if h.InsufficientData {
				cmd.Println("State of health: " + color.YellowString("insufficient data"))
				return nil
			}

			cmd.Printf("State of health: %s (%s)\n", bold("%.2f%%", h.Score), h.Label)
			if b := h.Breakdown; b != nil {
				cmd.Printf("  Capacity health: %.2f%% (weight %.1f)\n", b.CapacityHealth, b.CapacityWeight)
				cmd.Printf("  Cycle health: %.2f%% (weight %.1f)\n", b.CycleHealth, b.CycleWeight)
				cmd.Printf("  Wear ratio: %.3f\n", b.WearRatio)
				if !b.CyclesKnown {
					cmd.Println("  Cycle count unknown, scored as 0 cycles")
				}
			}
			if h.CycleCount != nil {
				suffix := ""
				switch {
				case h.CycleCountOverridden:
					suffix = " (set manually)"
				case h.CycleCountEstimated:
					suffix = " (estimated)"
				}
				cmd.Printf("  Cycles: %d of %d rated%s\n", *h.CycleCount, h.RatedCycleLife, suffix)
			}
			return nil
		},
	}
}

func NewLifespanCommand() *cobra.Command {
	threshold := 0.0

	cmd := &cobra.Command{
		Use:     "lifespan",
		GroupID: gBasic,
		Short:   "Project the remaining battery lifespan",
		Long: `Project how long until the battery health drops below a threshold, based on the usage so far.

Without --threshold both the primary and the critical threshold from the daemon config are shown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			thresholds := []float64{threshold}
			if threshold == 0 {
				conf, err := apiClient.GetConfig()
				if err != nil {
					return fmt.Errorf("failed to get config: %w", err)
				}
				c := config.NewFileFromConfig(conf, "")
				thresholds = []float64{c.PrimaryThreshold(), c.CriticalThreshold()}
			}

			for _, t := range thresholds {
				l, err := apiClient.GetLifespan(t)
				if err != nil {
					return fmt.Errorf("failed to get lifespan: %w", err)
				}
				console.PrintLifespan(cmd.OutOrStdout(), *l)
				if l.CyclesPerDay > 0 {
					cmd.Printf("    at %.2f cycles per day\n", l.CyclesPerDay)
				}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Health threshold in percent, e.g. 80")

	return cmd
}

func NewRefreshCommand() *cobra.Command {
	force := false

	cmd := &cobra.Command{
		Use:     "refresh",
		GroupID: gAdvanced,
		Short:   "Re-read all battery data now",
		Long: `Ask the daemon to re-read all battery data instead of waiting for the next scheduled refresh.

With --force the cached static details and the generated battery report are ignored.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			rec, err := apiClient.Refresh(force)
			if err != nil {
				return fmt.Errorf("failed to refresh: %w", err)
			}

			logrus.WithFields(logrus.Fields{
				"present":  rec.Present,
				"failures": len(rec.Failures),
			}).Info("battery data refreshed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Ignore cached data")

	return cmd
}

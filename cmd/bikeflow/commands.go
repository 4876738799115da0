package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/bikeflow/internal/app"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/internal/testevents"
)

func runOutcome(cmd *cobra.Command, res service.RunResult) error {
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Status == types.RunError {
		return fmt.Errorf("%s run failed: %w", res.Flow, res.Err)
	}
	return nil
}

func (c *cli) realtimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "realtime",
		Short: "Score and promote newly landed bronze events once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := c.newService(cmd.Context())
			if err != nil {
				return err
			}
			return runOutcome(cmd, svc.RunRealtime(cmd.Context()))
		},
	}
}

func (c *cli) historicalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "historical",
		Short: "Load staged historical batches into bronze, then score and promote them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := c.newService(cmd.Context())
			if err != nil {
				return err
			}
			return runOutcome(cmd, svc.RunHistorical(cmd.Context()))
		},
	}
}

func (c *cli) stageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Download, normalize and stage remote trip archives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := c.newService(cmd.Context())
			if err != nil {
				return err
			}
			staged, res := svc.StageHistorical(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), staged); err != nil {
				return err
			}
			return runOutcome(cmd, res)
		},
	}
}

func (c *cli) monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Check bronze freshness, write the observability snapshot and alert",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := c.newService(cmd.Context())
			if err != nil {
				return err
			}
			out, err := svc.Monitor(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func (c *cli) firehoseCmd() *cobra.Command {
	var (
		count    int
		duration time.Duration
		seed     uint64
	)
	cmd := &cobra.Command{
		Use:   "firehose",
		Short: "Write synthetic trip events into bronze",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := stores(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			f := testevents.NewFirehose(store, c.cfg.BronzeBucket, c.cfg.RawExtension, nil, c.log)
			stats, err := f.Run(cmd.Context(), testevents.Config{
				Rate:     c.cfg.FirehoseRate,
				Count:    count,
				Duration: duration,
				BadRatio: c.cfg.FirehoseBadRatio,
				Seed:     seed,
			})
			if perr := printJSON(cmd.OutOrStdout(), stats); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "number of events to write (0 = until --duration)")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Minute, "how long to run (0 = until --count)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (0 = time based)")
	return cmd
}

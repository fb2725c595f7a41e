package main

import (
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/mastery/internal/app"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

func (c *cli) newRunCommand() *cobra.Command {
	var job string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one job in the foreground and exit",
		Long: `Run executes a single job without the scheduler or the HTTP server.
The run takes the same lock a scheduled run does, so it is safe to use
next to a serving instance that shares the lock backend.`,
		Example: `  mastery run --job mastery
  mastery run --job reference --config ./mastery.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runJob(cmd, job)
		},
	}
	cmd.Flags().StringVar(&job, "job", model.JobMastery, "job to run: mastery or reference")
	return cmd
}

func (c *cli) runJob(cmd *cobra.Command, job string) error {
	ctx := cmd.Context()

	svc := service.New(
		service.WithConfig(c.cfg),
		service.WithLogger(c.log),
		service.WithoutScheduler(),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = svc.Stop(ctx) }()

	res, err := svc.Run(ctx, job, model.TriggerCLI)
	if err != nil {
		return err
	}
	for _, st := range res.Stages {
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-8s %s %s\n", st.Name, st.Status, st.Duration, st.Error)
	}
	if res.Status() != service.StatusOK {
		c.log.Warn(ctx, "run finished with failures", logger.String("job", job), logger.String("run_id", res.RunID.String()))
		return fmt.Errorf("%s run %s: %s", job, res.RunID, res.Status())
	}
	return nil
}

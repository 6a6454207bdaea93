package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/jobs"
)

type enqueueOptions struct {
	queue   string
	payload string
	delay   time.Duration
	jobID   string
}

func newEnqueueCmd() *cobra.Command {
	opts := enqueueOptions{}
	cmd := &cobra.Command{
		Use:   "enqueue <job>",
		Short: "Put a job on a queue of the configured broker",
		Example: `  crmflow enqueue awardBadges --queue badge
  crmflow enqueue syncMarketplaceOrders --payload '{"integrationId":"shopee-1"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.queue, "queue", "q", string(jobs.QueueDefault), "queue name: badge, scoring or default")
	f.StringVarP(&opts.payload, "payload", "p", "", "job payload as a JSON object")
	f.DurationVar(&opts.delay, "delay", 0, "run the job no earlier than this from now")
	f.StringVar(&opts.jobID, "job-id", "", "explicit job id; a repeat id is not enqueued twice")
	return cmd
}

func enqueue(cmd *cobra.Command, name string, opts enqueueOptions) error {
	queue := jobs.Queue(opts.queue)
	if !queue.Valid() {
		return fmt.Errorf("unknown queue %q", opts.queue)
	}
	if opts.delay < 0 {
		return errors.New("delay must not be negative")
	}

	var payload map[string]any
	if opts.payload != "" {
		if err := json.Unmarshal([]byte(opts.payload), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Broker.Backend == "memory" {
		return errors.New("the memory broker lives inside the serve process; set BROKER_BACKEND to redis or sqs")
	}

	ctx := cmd.Context()
	redisClient := newRedisClient(cfg, logger)
	defer redisClient.Close()

	broker, err := newBroker(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	job, err := jobs.NewProducer(broker, logger).Enqueue(ctx, queue, name, payload, jobs.EnqueueOptions{
		Delay: opts.delay,
		JobID: opts.jobID,
	})
	if err != nil {
		return err
	}

	logger.Debug("job enqueued from cli", zap.String("job_id", job.ID))
	fmt.Fprintln(cmd.OutOrStdout(), job.ID)
	return nil
}

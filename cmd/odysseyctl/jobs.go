package main

import (
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-core/jobs"
)

// jobsCLI wraps manual management helpers for Asynq jobs.
type jobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) *jobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &jobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *jobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// queueStats summarises the current queue state.
type queueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

func (c *jobsCLI) inspectQueue() (queueStats, error) {
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return queueStats{}, err
	}
	stats := queueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

func (c *jobsCLI) retryArchived(size int) (int, error) {
	if size <= 0 {
		size = 50
	}
	tasks, err := c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if t.Type != jobs.TaskUserProvision {
			continue
		}
		if err := c.inspector.RunTask(jobs.QueueDefault, t.ID); err != nil {
			return n, fmt.Errorf("run %s: %w", t.ID, err)
		}
		n++
	}
	return n, nil
}

func jobsCmd() *cobra.Command {
	var redisAddr string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the provisioning queue",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", "127.0.0.1:6379", "Redis address of the queue")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newJobsCLI(redisAddr)
			defer c.Close()
			stats, err := c.inspectQueue()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enqueue REQUEST_ID",
		Short: "Re-enqueue a pending provisioning request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newJobsCLI(redisAddr)
			defer c.Close()
			if err := c.client.EnqueueProvision(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", args[0])
			return nil
		},
	})

	var size int
	retry := &cobra.Command{
		Use:   "retry-archived",
		Short: "Run archived provisioning tasks again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newJobsCLI(redisAddr)
			defer c.Close()
			n, err := c.retryArchived(size)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d task(s)\n", n)
			return nil
		},
	}
	retry.Flags().IntVar(&size, "limit", 50, "Maximum archived tasks to requeue")
	cmd.AddCommand(retry)
	return cmd
}

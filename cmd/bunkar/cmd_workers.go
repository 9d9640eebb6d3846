package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/bunkar/internal/server"
	"github.com/shashiranjanraj/bunkar/pkg/queue"
	"github.com/shashiranjanraj/bunkar/pkg/schedule"
)

var (
	queueWorkersFlag int
	failedLimitFlag  int
)

// bunkar queue:work
var queueWorkCmd = &cobra.Command{
	Use:   "queue:work",
	Short: "Process queued jobs without serving HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.Boot(ctx)
		if err != nil {
			return err
		}
		defer app.Close(context.WithoutCancel(ctx))

		workers := max(queueWorkersFlag, 1)
		fmt.Printf("Queue worker started (%d workers). Press Ctrl+C to stop.\n", workers)
		queue.StartWorkers(ctx, workers)

		<-ctx.Done()
		fmt.Println("Queue worker stopped.")
		return nil
	},
}

// bunkar queue:failed
var queueFailedCmd = &cobra.Command{
	Use:   "queue:failed",
	Short: "List jobs that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := server.Connect()
		if err != nil {
			return err
		}
		queue.UseDB(db)

		records, err := queue.StoredFailures(cmd.Context(), failedLimitFlag)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No failed jobs.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FAILED AT\tTYPE\tATTEMPTS\tERROR")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.FailedAt.Format("2006-01-02 15:04:05"), r.JobType, r.Attempts, r.Error)
		}
		return w.Flush()
	},
}

// bunkar schedule:run
var scheduleRunCmd = &cobra.Command{
	Use:   "schedule:run",
	Short: "Run the scheduler without serving HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.Boot(ctx)
		if err != nil {
			return err
		}
		defer app.Close(context.WithoutCancel(ctx))
		app.Schedule()

		fmt.Println("Scheduler started. Press Ctrl+C to stop.")
		schedule.Start(ctx)

		<-ctx.Done()
		fmt.Println("Scheduler stopped.")
		return nil
	},
}

var runTaskFlag string

// bunkar schedule:list
var scheduleListCmd = &cobra.Command{
	Use:   "schedule:list",
	Short: "List scheduled tasks, or run one now with --run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runTaskFlag != "" {
			app, err := server.Boot(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())
			app.Schedule()
			return schedule.RunNow(cmd.Context(), runTaskFlag)
		}

		(&server.App{}).Schedule()
		for _, t := range schedule.List() {
			fmt.Println("  •", t)
		}
		return nil
	},
}

func init() {
	queueWorkCmd.Flags().IntVarP(&queueWorkersFlag, "workers", "w", 4, "Number of concurrent workers")
	queueFailedCmd.Flags().IntVarP(&failedLimitFlag, "limit", "n", 50, "Maximum number of jobs to show")
	scheduleListCmd.Flags().StringVar(&runTaskFlag, "run", "", "Run the named task once and exit")
}

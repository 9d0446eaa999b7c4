package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"mindcare-go/internal/offline"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send pending screenings and queued requests",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		watch, _ := cmd.Flags().GetBool("watch")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if watch {
			return a.Watch(cmd.Context())
		}

		report, err := a.Sync(cmd.Context())
		if err != nil {
			return err
		}

		return newPrinter(os.Stdout).print(report, func(w io.Writer) {
			if report.Screenings.Skipped != "" {
				fmt.Fprintf(w, "Screenings:\tskipped (%s)\n", report.Screenings.Skipped)
			} else {
				fmt.Fprintf(w, "Screenings:\t%d synced, %d failed\n", report.Screenings.Synced, report.Screenings.Failed)
			}
			fmt.Fprintf(w, "Queue:\t%d sent, %d failed, %d dead-lettered\n",
				report.Queue.Sent, report.Queue.Failed, report.Queue.DeadLettered)
			if report.Helplines != nil {
				fmt.Fprintf(w, "Helplines:\t%d entries downloaded\n", report.Helplines.Entries)
			}
		})
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued requests in delivery order",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		items, err := a.Queue().DequeueAllSortedByPriority(cmd.Context())
		if err != nil {
			return err
		}
		return printQueue(items)
	},
}

var queueDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List requests that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		items, err := a.Queue().DeadLetters(cmd.Context())
		if err != nil {
			return err
		}
		return printQueue(items)
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue ID",
	Short: "Return a dead-lettered request to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid queue item id %q", args[0])
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.Queue().Requeue(cmd.Context(), id); err != nil {
			return err
		}
		return newPrinter(os.Stdout).message("Requeued item %d", id)
	},
}

func printQueue(items []*offline.SyncQueueItem) error {
	return newPrinter(os.Stdout).print(items, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "Queue is empty.")
			return
		}
		fmt.Fprintln(w, "ID\tPRIORITY\tACTION\tENDPOINT\tRETRIES\tQUEUED")
		for _, it := range items {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d/%d\t%s\n",
				it.ID, it.Priority, it.Action, it.Endpoint, it.Retries, it.MaxRetries,
				it.EnqueuedAt.Format(time.DateTime))
		}
	})
}

func init() {
	syncCmd.Flags().BoolP("watch", "w", false, "Keep running and sync whenever the backend is reachable")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDeadCmd)
	queueCmd.AddCommand(queueRequeueCmd)
}

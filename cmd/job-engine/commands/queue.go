package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/logger"
)

// QueueCmd groups queue operations.
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Operate on the job queue",
}

var queuePutCmd = &cobra.Command{
	Use:   "put <job-id>",
	Short: "Put a job id on the queue",
	Long: `Put a job id on the etcd queue, as the Resource API does when a job is
created. Putting an id that is already queued adds a second entry; the
executor drops the duplicate once the job is finished.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueuePut,
}

var queuePriority int

func init() {
	queuePutCmd.Flags().IntVarP(&queuePriority, "priority", "p", 0, "Entry priority, lower runs first")
	QueueCmd.AddCommand(queuePutCmd)
}

func runQueuePut(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	log := logger.ComponentLogger("queue")
	cli, err := coord.Dial(ctx, settings.Coord.Hosts, time.Duration(settings.Coord.DialTimeoutSeconds)*time.Second, log)
	if err != nil {
		return err
	}
	defer cli.Close()

	queue, err := coord.NewEtcdQueue(cli, settings.Coord.Prefix, settings.Coord.SessionTTLSeconds, log)
	if err != nil {
		return err
	}
	defer queue.Close()

	if err := queue.Put(ctx, args[0], queuePriority); err != nil {
		return err
	}
	pterm.Success.Printf("Queued %s (priority %d)\n", args[0], queuePriority)
	return nil
}

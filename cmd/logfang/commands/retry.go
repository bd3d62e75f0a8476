package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/persist"
	"github.com/Sumatoshi-tech/logfang/internal/queue"
)

// DefaultRetryCount bounds a single retry sweep.
const DefaultRetryCount = 10

// failedExportPeek bounds how much of the dead-letter list an export reads.
const failedExportPeek = 1000

// FailedExport is the state written by retry --export.
type FailedExport struct {
	ExportedAt time.Time      `json:"exported_at"`
	Jobs       []logmodel.Job `json:"jobs"`
}

// RetryCommand holds flags for the dead-letter management command.
type RetryCommand struct {
	configPath string
	count      int
	toPriority bool
	exportPath string
}

// NewRetryCommand creates the dead-letter queue management command.
func NewRetryCommand() *cobra.Command {
	rc := &RetryCommand{}

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Manage the dead-letter queue",
		Long: `Move failed embedding jobs back onto a live queue with their
retry count bumped, or export the dead-letter list with --export.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().IntVar(&rc.count, "count", DefaultRetryCount, "Maximum jobs to retry")
	cmd.Flags().BoolVar(&rc.toPriority, "to-priority", false, "Restore onto the priority queue")
	cmd.Flags().StringVar(&rc.exportPath, "export", "", "Export failed jobs to this path instead of retrying (.json or .json.lz4)")

	return cmd
}

func (rc *RetryCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(false)

	cfg, err := loadConfig(rc.configPath)
	if err != nil {
		return err
	}

	redisClient := openRedis(cfg)
	defer redisClient.Close()

	broker := queue.New(redisClient, logger)

	if rc.exportPath != "" {
		peeked, peekErr := broker.Peek(ctx, failedExportPeek)
		if peekErr != nil {
			return peekErr
		}

		failed := peeked[queue.KeyFailed]

		writeErr := persist.WriteFile(rc.exportPath, FailedExport{
			ExportedAt: time.Now().UTC(),
			Jobs:       failed,
		})
		if writeErr != nil {
			return writeErr
		}

		fmt.Fprintf(os.Stdout, "exported %d failed jobs to %s\n", len(failed), rc.exportPath)

		return nil
	}

	restored, retryErr := broker.RetryFailed(ctx, rc.count, rc.toPriority)
	if retryErr != nil {
		return retryErr
	}

	fmt.Fprintf(os.Stdout, "restored %d jobs\n", restored)

	return nil
}

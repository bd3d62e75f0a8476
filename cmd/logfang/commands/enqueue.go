package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/queue"
	"github.com/Sumatoshi-tech/logfang/internal/registry"
)

// DefaultEnqueueBatch is the page size for seeded embedding jobs.
const DefaultEnqueueBatch = 100

// ErrNoStreamSelected indicates neither --stream nor --all was given.
var ErrNoStreamSelected = errors.New("either --stream or --all is required")

// EnqueueCommand holds flags for the queue seeding command.
type EnqueueCommand struct {
	configPath string
	streamID   string
	all        bool
	offset     int64
	batch      int
	priority   bool
}

// NewEnqueueCommand creates the embedding queue seeding command.
func NewEnqueueCommand() *cobra.Command {
	ec := &EnqueueCommand{}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Seed the embedding queue",
		Long: `Push first-page embedding jobs for one stream or for every
enabled stream. The worker enqueues follow-up pages itself.`,
		Args: cobra.NoArgs,
		RunE: ec.run,
	}

	cmd.Flags().StringVar(&ec.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().StringVar(&ec.streamID, "stream", "", "Stream id to enqueue (dataset.table)")
	cmd.Flags().BoolVar(&ec.all, "all", false, "Enqueue every enabled stream")
	cmd.Flags().Int64Var(&ec.offset, "offset", 0, "Row offset to start from")
	cmd.Flags().IntVar(&ec.batch, "batch", DefaultEnqueueBatch, "Rows per embedding job")
	cmd.Flags().BoolVar(&ec.priority, "priority", false, "Push onto the priority queue")

	return cmd
}

func (ec *EnqueueCommand) run(cmd *cobra.Command, _ []string) error {
	if ec.streamID == "" && !ec.all {
		return ErrNoStreamSelected
	}

	ctx := cmd.Context()
	logger := newLogger(false)

	cfg, err := loadConfig(ec.configPath)
	if err != nil {
		return err
	}

	streamIDs := []string{ec.streamID}

	if ec.all {
		pool, poolErr := openWarehouse(ctx, cfg)
		if poolErr != nil {
			return poolErr
		}
		defer pool.Close()

		streams, listErr := registry.New(pool, logger).List(ctx, true)
		if listErr != nil {
			return listErr
		}

		streamIDs = streamIDs[:0]
		for _, stream := range streams {
			streamIDs = append(streamIDs, stream.StreamID)
		}
	}

	redisClient := openRedis(cfg)
	defer redisClient.Close()

	broker := queue.New(redisClient, logger)

	for _, streamID := range streamIDs {
		job := logmodel.NewJob(streamID, ec.offset, ec.batch, ec.priority)

		enqueueErr := broker.Enqueue(ctx, job)
		if enqueueErr != nil {
			return enqueueErr
		}
	}

	fmt.Fprintf(os.Stdout, "enqueued %d jobs\n", len(streamIDs))

	return nil
}

package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/registry"
)

// DiscoverCommand holds flags for the stream discovery command.
type DiscoverCommand struct {
	configPath string
	register   bool
	verbose    bool
}

// NewDiscoverCommand creates the source table discovery command.
func NewDiscoverCommand() *cobra.Command {
	dc := &DiscoverCommand{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover log source tables in the warehouse",
		Long: `Scan the configured datasets for tables with known log columns,
classify them by direction and flow, and optionally register them as
streams.`,
		Args: cobra.NoArgs,
		RunE: dc.run,
	}

	cmd.Flags().StringVar(&dc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().BoolVar(&dc.register, "register", false, "Register discovered streams")
	cmd.Flags().BoolVarP(&dc.verbose, "verbose", "v", false, "Log per-dataset progress")

	return cmd
}

func (dc *DiscoverCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(dc.verbose)

	cfg, err := loadConfig(dc.configPath)
	if err != nil {
		return err
	}

	pool, poolErr := openWarehouse(ctx, cfg)
	if poolErr != nil {
		return poolErr
	}
	defer pool.Close()

	streams := registry.New(pool, logger)

	discovered, discoverErr := streams.Discover(ctx, cfg.Warehouse.Datasets)
	if discoverErr != nil {
		return discoverErr
	}

	printStreams(discovered)

	if !dc.register {
		return nil
	}

	for _, stream := range discovered {
		registerErr := streams.Register(ctx, stream)
		if registerErr != nil {
			return registerErr
		}
	}

	fmt.Fprintf(os.Stdout, "registered %d streams\n", len(discovered))

	return nil
}

func printStreams(streams []logmodel.Stream) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Stream", "Direction", "Flow", "Region", "Zone", "Priority", "Enabled"})

	for _, stream := range streams {
		tbl.AppendRow(table.Row{
			stream.StreamID,
			stream.Direction,
			stream.Flow,
			stream.Coordinates.Region,
			stream.Coordinates.Zone,
			stream.Priority,
			stream.Enabled,
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d streams", len(streams))})
	tbl.Render()
}

package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/extract"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/normalize"
	"github.com/Sumatoshi-tech/logfang/internal/registry"
)

// DefaultPreviewLimit bounds preview output when no limit is given.
const DefaultPreviewLimit = 10

// previewMessageWidth truncates messages for table display.
const previewMessageWidth = 80

// PreviewCommand holds flags for the preview command.
type PreviewCommand struct {
	configPath string
	streamID   string
	limit      int64
}

// NewPreviewCommand creates the extract-and-normalize preview command.
func NewPreviewCommand() *cobra.Command {
	pc := &PreviewCommand{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Extract and normalize a stream without loading",
		Args:  cobra.NoArgs,
		RunE:  pc.run,
	}

	cmd.Flags().StringVar(&pc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().StringVar(&pc.streamID, "stream", "", "Stream id to preview (dataset.table)")
	cmd.Flags().Int64Var(&pc.limit, "limit", DefaultPreviewLimit, "Maximum rows to preview")

	err := cmd.MarkFlagRequired("stream")
	if err != nil {
		panic(err)
	}

	return cmd
}

func (pc *PreviewCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(false)

	cfg, err := loadConfig(pc.configPath)
	if err != nil {
		return err
	}

	pool, poolErr := openWarehouse(ctx, cfg)
	if poolErr != nil {
		return poolErr
	}
	defer pool.Close()

	stream, getErr := registry.New(pool, logger).Get(ctx, pc.streamID)
	if getErr != nil {
		return getErr
	}

	page, extractErr := extract.New(pool, logger).Extract(ctx, stream, 0, pc.limit, 0)
	if extractErr != nil {
		return extractErr
	}

	canonical := make([]*logmodel.CanonicalLog, 0, len(page))
	for _, raw := range page {
		canonical = append(canonical, normalize.Normalize(raw))
	}

	printPreview(canonical)

	return nil
}

func printPreview(logs []*logmodel.CanonicalLog) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Timestamp", "Severity", "Service", "Category", "Message"})

	for _, c := range logs {
		tbl.AppendRow(table.Row{
			c.EventTimestamp.Format("2006-01-02 15:04:05"),
			c.Severity,
			c.ServiceName,
			c.MessageCategory,
			truncateDisplay(c.Message, previewMessageWidth),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d rows", len(logs))})
	tbl.Render()
}

// truncateDisplay shortens s to max runes for table cells.
func truncateDisplay(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return string(runes[:max-1]) + "…"
}

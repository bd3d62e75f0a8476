package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/logfang/internal/jobstore"
	"github.com/Sumatoshi-tech/logfang/internal/persist"
	"github.com/Sumatoshi-tech/logfang/internal/queue"
	"github.com/Sumatoshi-tech/logfang/internal/report"
)

// Status display bounds.
const (
	statusRecentJobs  = 10
	statusAlertLimit  = 20
	statusWindowHours = 24
)

// StatusExport is the state written by status --export. The lz4 persist
// codec is picked from the file extension.
type StatusExport struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Jobs        []jobstore.Record           `json:"jobs"`
	Summary     jobstore.Summary            `json:"summary"`
	QueueDepths map[string]int64            `json:"queue_depths"`
	Global      checkpoint.GlobalCheckpoint `json:"global"`
	Alerts      []jobstore.Alert            `json:"alerts,omitempty"`
}

// StatusCommand holds flags for the status command.
type StatusCommand struct {
	configPath string
	htmlPath   string
	exportPath string
}

// NewStatusCommand creates the pipeline status command.
func NewStatusCommand() *cobra.Command {
	sc := &StatusCommand{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent runs, queue depths, and checkpoints",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().StringVar(&sc.htmlPath, "html", "", "Write an HTML report to this path")
	cmd.Flags().StringVar(&sc.exportPath, "export", "", "Export status state to this path (.json or .json.lz4)")

	return cmd
}

func (sc *StatusCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(false)

	cfg, err := loadConfig(sc.configPath)
	if err != nil {
		return err
	}

	pool, poolErr := openWarehouse(ctx, cfg)
	if poolErr != nil {
		return poolErr
	}
	defer pool.Close()

	redisClient := openRedis(cfg)
	defer redisClient.Close()

	jobs := jobstore.New(pool, logger)
	broker := queue.New(redisClient, logger)
	checkpoints := checkpoint.NewRegistry(redisClient, logger)

	recent, recentErr := jobs.Recent(ctx, statusRecentJobs)
	if recentErr != nil {
		return recentErr
	}

	summary, summaryErr := jobs.Summarize(ctx, statusWindowHours*time.Hour)
	if summaryErr != nil {
		return summaryErr
	}

	depths, depthsErr := broker.Depths(ctx)
	if depthsErr != nil {
		return depthsErr
	}

	global, globalErr := checkpoints.Global(ctx)
	if globalErr != nil {
		return globalErr
	}

	alerts, alertsErr := jobs.OpenAlerts(ctx, statusAlertLimit)
	if alertsErr != nil {
		return alertsErr
	}

	printStatus(recent, summary, depths, global, alerts)

	if sc.htmlPath != "" {
		htmlErr := sc.writeHTML(ctx, checkpoints, recent, depths)
		if htmlErr != nil {
			return htmlErr
		}
	}

	if sc.exportPath != "" {
		exportErr := persist.WriteFile(sc.exportPath, StatusExport{
			GeneratedAt: time.Now().UTC(),
			Jobs:        recent,
			Summary:     summary,
			QueueDepths: depths,
			Global:      global,
			Alerts:      alerts,
		})
		if exportErr != nil {
			return exportErr
		}

		fmt.Fprintf(os.Stdout, "exported status to %s\n", sc.exportPath)
	}

	return nil
}

func (sc *StatusCommand) writeHTML(ctx context.Context, checkpoints *checkpoint.Registry, jobs []jobstore.Record, depths map[string]int64) error {
	embedLatency, embedErr := checkpoints.LatencySamples(ctx, checkpoint.ServiceEmbed)
	if embedErr != nil {
		return embedErr
	}

	upsertLatency, upsertErr := checkpoints.LatencySamples(ctx, checkpoint.ServiceVector)
	if upsertErr != nil {
		return upsertErr
	}

	file, createErr := os.Create(sc.htmlPath)
	if createErr != nil {
		return fmt.Errorf("create report file: %w", createErr)
	}
	defer file.Close()

	renderErr := report.Render(file, report.Data{
		Jobs:          jobs,
		EmbedLatency:  embedLatency,
		UpsertLatency: upsertLatency,
		QueueDepths:   depths,
	})
	if renderErr != nil {
		return renderErr
	}

	fmt.Fprintf(os.Stdout, "wrote report to %s\n", sc.htmlPath)

	return nil
}

func printStatus(jobs []jobstore.Record, summary jobstore.Summary, depths map[string]int64, global checkpoint.GlobalCheckpoint, alerts []jobstore.Alert) {
	printJobsTable(jobs)

	fmt.Fprintf(os.Stdout, "\nLast %dh: %d runs, %.0f%% success, %s rows loaded, avg %.0f ms (p50 %d, p95 %d)\n",
		statusWindowHours,
		summary.Runs,
		summary.SuccessRate*100,
		humanize.Comma(summary.TotalLoaded),
		summary.AvgDurationMS,
		summary.P50DurationMS,
		summary.P95DurationMS)

	fmt.Fprintf(os.Stdout, "Queues: priority=%d backlog=%d failed=%d\n",
		depths[queue.KeyPriority],
		depths[queue.KeyBacklog],
		depths[queue.KeyFailed])

	fmt.Fprintf(os.Stdout, "Embedded: %s points across %d completed tables",
		humanize.Comma(global.TotalEmbedded),
		global.TablesCompleted)

	if !global.UpdatedAt.IsZero() {
		fmt.Fprintf(os.Stdout, " (updated %s)", humanize.Time(global.UpdatedAt))
	}

	fmt.Fprintln(os.Stdout)

	for _, alert := range alerts {
		color.New(color.FgRed).Fprintf(os.Stdout, "alert #%d [%s] %s: %s\n",
			alert.AlertID, alert.Severity, alert.StreamID, alert.Message)
	}
}

func printJobsTable(jobs []jobstore.Record) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Job", "Status", "Started", "Loaded", "Failed", "Duration"})

	for _, job := range jobs {
		tbl.AppendRow(table.Row{
			shortID(job.JobID),
			statusCell(job.Status),
			humanize.Time(job.StartedAt),
			humanize.Comma(job.Loaded),
			job.Failed,
			(time.Duration(job.DurationMS) * time.Millisecond).String(),
		})
	}

	tbl.Render()
}

// statusCell colors a run status for terminal output.
func statusCell(status string) string {
	switch status {
	case "COMPLETED":
		return color.GreenString(status)
	case "FAILED":
		return color.RedString(status)
	case "PARTIAL":
		return color.YellowString(status)
	default:
		return status
	}
}

// shortID abbreviates a UUID for table display.
func shortID(id string) string {
	const width = 8

	if len(id) <= width {
		return id
	}

	return id[:width]
}

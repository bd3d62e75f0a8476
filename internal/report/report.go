// Package report renders an HTML snapshot of pipeline and worker health:
// recent run volumes, run durations, per-service latency samples, and queue
// depths.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/logfang/internal/jobstore"
)

const chartWidth = "1100px"

// Data is everything one report renders.
type Data struct {
	Jobs          []jobstore.Record
	EmbedLatency  []float64
	UpsertLatency []float64
	QueueDepths   map[string]int64
}

// Render writes the report page.
func Render(w io.Writer, data Data) error {
	page := components.NewPage()
	page.PageTitle = "logfang status"

	page.AddCharts(
		jobVolumeChart(data.Jobs),
		jobDurationChart(data.Jobs),
		latencyChart("Embedding latency (ms)", data.EmbedLatency),
		latencyChart("Upsert latency (ms)", data.UpsertLatency),
		queueDepthChart(data.QueueDepths),
	)

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	return nil
}

func jobVolumeChart(jobs []jobstore.Record) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Rows loaded per run"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth}),
	)

	labels := make([]string, 0, len(jobs))
	loaded := make([]opts.BarData, 0, len(jobs))
	failed := make([]opts.BarData, 0, len(jobs))

	// Jobs arrive newest first; plot oldest to newest.
	for i := len(jobs) - 1; i >= 0; i-- {
		job := jobs[i]

		labels = append(labels, job.StartedAt.Format("01-02 15:04"))
		loaded = append(loaded, opts.BarData{Value: job.Loaded})
		failed = append(failed, opts.BarData{Value: job.Failed})
	}

	bar.SetXAxis(labels)
	bar.AddSeries("loaded", loaded)
	bar.AddSeries("failed", failed)

	return bar
}

func jobDurationChart(jobs []jobstore.Record) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Run duration (ms)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth}),
	)

	labels := make([]string, 0, len(jobs))
	durations := make([]opts.LineData, 0, len(jobs))

	for i := len(jobs) - 1; i >= 0; i-- {
		labels = append(labels, jobs[i].StartedAt.Format("01-02 15:04"))
		durations = append(durations, opts.LineData{Value: jobs[i].DurationMS})
	}

	line.SetXAxis(labels)
	line.AddSeries("duration", durations,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)

	return line
}

func latencyChart(title string, samples []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth}),
	)

	labels := make([]string, 0, len(samples))
	points := make([]opts.LineData, 0, len(samples))

	// Samples arrive newest first off the rolling list.
	for i := len(samples) - 1; i >= 0; i-- {
		labels = append(labels, fmt.Sprintf("%d", len(samples)-i))
		points = append(points, opts.LineData{Value: samples[i]})
	}

	line.SetXAxis(labels)
	line.AddSeries("latency", points)

	return line
}

func queueDepthChart(depths map[string]int64) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Queue depths"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	names := make([]string, 0, len(depths))
	for name := range depths {
		names = append(names, name)
	}

	sort.Strings(names)

	values := make([]opts.BarData, 0, len(names))
	for _, name := range names {
		values = append(values, opts.BarData{Value: depths[name]})
	}

	bar.SetXAxis(names)
	bar.AddSeries("depth", values)

	return bar
}

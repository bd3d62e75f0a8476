package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/embed"
	"github.com/Sumatoshi-tech/logfang/internal/vectorstore"
)

// DefaultQueryLimit bounds search results when no limit is given.
const DefaultQueryLimit = 10

// queryMessageWidth truncates matched messages for table display.
const queryMessageWidth = 70

// QueryCommand holds flags for the semantic search command.
type QueryCommand struct {
	configPath string
	severity   string
	service    string
	limit      uint64
}

// NewQueryCommand creates the semantic search command.
func NewQueryCommand() *cobra.Command {
	qc := &QueryCommand{}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Semantic search over the vector index",
		Long: `Embed the query text and run a nearest-neighbour search. The
severity and service flags are passed through as exact keyword filters.`,
		Args: cobra.ExactArgs(1),
		RunE: qc.run,
	}

	cmd.Flags().StringVar(&qc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().StringVar(&qc.severity, "severity", "", "Filter by severity (e.g. ERROR)")
	cmd.Flags().StringVar(&qc.service, "service", "", "Filter by service name")
	cmd.Flags().Uint64Var(&qc.limit, "limit", DefaultQueryLimit, "Maximum results")

	return cmd
}

func (qc *QueryCommand) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(false)

	cfg, err := loadConfig(qc.configPath)
	if err != nil {
		return err
	}

	qdrantClient, qdrantErr := openQdrant(cfg)
	if qdrantErr != nil {
		return qdrantErr
	}

	embedder := embed.NewClient(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Dimension, nil, logger)

	vector, embedErr := embedder.Embed(ctx, args[0])
	if embedErr != nil {
		return embedErr
	}

	writer := vectorstore.NewWriter(qdrantClient, cfg.Qdrant.Collection, cfg.Embedding.Dimension, nil, logger)

	keywords := map[string]string{}
	if qc.severity != "" {
		keywords["severity"] = qc.severity
	}

	if qc.service != "" {
		keywords["service_name"] = qc.service
	}

	matches, searchErr := writer.Search(ctx, vectorstore.QueryParams{
		Vector:   vector,
		Limit:    qc.limit,
		Keywords: keywords,
	})
	if searchErr != nil {
		return searchErr
	}

	printMatches(matches)

	return nil
}

func printMatches(matches []vectorstore.Match) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Score", "Severity", "Service", "Text"})

	for _, match := range matches {
		tbl.AppendRow(table.Row{
			fmt.Sprintf("%.3f", match.Score),
			match.Payload["severity"],
			match.Payload["service_name"],
			truncateDisplay(match.Payload["text_payload"], queryMessageWidth),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d matches", len(matches))})
	tbl.Render()
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/load"
	"github.com/Sumatoshi-tech/logfang/sql"
)

// SchemaCommand holds flags for the schema command.
type SchemaCommand struct {
	configPath string
	apply      bool
}

// NewSchemaCommand creates the DDL print/apply command.
func NewSchemaCommand() *cobra.Command {
	sc := &SchemaCommand{}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the warehouse DDL",
		Long: `Print the embedded versioned DDL statements, or apply them with
--apply. The statements are idempotent; applying against an existing schema
is safe.`,
		Args: cobra.NoArgs,
		RunE: sc.run,
	}

	cmd.Flags().StringVar(&sc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().BoolVar(&sc.apply, "apply", false, "Execute the DDL against the warehouse")

	return cmd
}

func (sc *SchemaCommand) run(cmd *cobra.Command, _ []string) error {
	if !sc.apply {
		statements, err := sql.Statements()
		if err != nil {
			return err
		}

		for _, statement := range statements {
			fmt.Fprintln(os.Stdout, statement)
		}

		return nil
	}

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

	applyErr := load.New(pool, logger).EnsureSchema(ctx)
	if applyErr != nil {
		return applyErr
	}

	fmt.Fprintln(os.Stdout, "schema applied")

	return nil
}

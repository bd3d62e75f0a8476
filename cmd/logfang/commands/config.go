package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigCommand holds flags for the config inspection command.
type ConfigCommand struct {
	configPath string
}

// NewConfigCommand creates the effective-configuration command.
func NewConfigCommand() *cobra.Command {
	cc := &ConfigCommand{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the merged configuration as YAML: defaults, config file,
and LOGFANG_* environment overrides, in ascending precedence.`,
		Args: cobra.NoArgs,
		RunE: cc.run,
	}

	cmd.Flags().StringVar(&cc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")

	return cmd
}

func (cc *ConfigCommand) run(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cc.configPath)
	if err != nil {
		return err
	}

	out, marshalErr := yaml.Marshal(cfg)
	if marshalErr != nil {
		return fmt.Errorf("marshal config: %w", marshalErr)
	}

	_, writeErr := os.Stdout.Write(out)
	if writeErr != nil {
		return fmt.Errorf("write config: %w", writeErr)
	}

	return nil
}

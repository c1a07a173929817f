package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/fusesearch/configs"
	"github.com/Aman-CERP/fusesearch/internal/config"
	"github.com/Aman-CERP/fusesearch/internal/output"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Create and inspect fusesearch configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/fusesearch/config.yaml)
  3. Project config (.fusesearch.yaml or .fusesearch.toml)
  4. Environment variables (FUSESEARCH_*)`,
		Example: `  # Create .fusesearch.yaml in the current project
  fusesearch config init

  # Create the user config instead
  fusesearch config init --user

  # Show effective configuration (merged from all sources)
  fusesearch config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(g *globals) *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file from the template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, template := "", configs.ProjectConfigTemplate
			if user {
				target, template = config.GetUserConfigPath(), configs.UserConfigTemplate
			} else {
				root, err := projectRoot(args)
				if err != nil {
					return err
				}
				target = filepath.Join(root, ".fusesearch.yaml")
			}
			return writeTemplate(output.New(cmd.OutOrStdout(), g.colorOff()), target, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func writeTemplate(out *output.Writer, path, template string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	out.Successf("Created %s", path)
	out.Hint("Edit it, then check it with 'fusesearch config show'")
	return nil
}

func newConfigShowCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Show effective configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(root)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

package main

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCmd(c))
	return cmd
}

func newConfigShowCmd(c *cli) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeConfig(cmd.OutOrStdout(), c.cfg.Redacted(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or toml")
	return cmd
}

func writeConfig(w io.Writer, cfg config.ServerConfig, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(cfg)
	default:
		return fmt.Errorf("unknown format %q (use yaml or toml)", format)
	}
}

// Command zrcp runs the content API and its maintenance tasks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/config"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli holds what every subcommand shares once flags are parsed.
type cli struct {
	envFile    string
	configFile string
	logLevel   string
	dbURL      string
	port       string

	cfg    *config.ServerConfig
	logger *slog.Logger
}

// NewRootCommand creates the zrcp command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "zrcp",
		Short: "Content API for blogs, research and media",
		Long: `zrcp serves the blog, research and image API and runs the
maintenance tasks around it: schema migrations, moving local media to
object storage and provisioning staff accounts.

Configuration comes from the environment, an optional .env file and an
optional YAML or TOML config file.`,
		Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}

	rootCmd.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "YAML or TOML config file")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&c.dbURL, "database-url", "", "database URL, overrides DATABASE_URL")

	rootCmd.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newMigrateMediaCmd(c),
		newUserCmd(c),
		newConfigCmd(c),
	)

	return rootCmd
}

func (c *cli) load(cmd *cobra.Command, args []string) error {
	envFile := c.envFile
	if envFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			envFile = ".env"
		}
	}

	opts := []config.Option{
		config.WithDotEnv(envFile),
		config.WithConfigFile(c.configFile),
		config.WithEnv(),
	}
	if f := cmd.Flags().Lookup("database-url"); f != nil && f.Changed {
		opts = append(opts, config.WithDatabaseURL(c.dbURL))
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		opts = append(opts, config.WithPort(c.port))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Log.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	logger, err := newLogger(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	c.cfg = cfg
	c.logger = logger
	return nil
}

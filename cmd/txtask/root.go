package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/txtask/internal/config"
	"github.com/phrazzld/txtask/internal/platform/logger"
	"github.com/phrazzld/txtask/internal/redact"
	"github.com/spf13/cobra"
)

// cli holds state shared by every command once the root has loaded it
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "txtask",
		Short:         "Transactional task dispatch and execution",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a config file (default: ./config.yaml if present)")

	root.AddCommand(
		newServeCmd(c),
		newWorkerCmd(c),
		newMigrateCmd(c),
		newSubmitCmd(c),
		newTasksCmd(c),
	)
	return root
}

func (c *cli) load() error {
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"backend", cfg.Task.Backend,
		"eager", cfg.Task.Eager,
		"database_url", redact.DatabaseURL(cfg.Database.URL))

	c.cfg = cfg
	c.logger = log
	return nil
}

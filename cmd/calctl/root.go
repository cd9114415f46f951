package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tazhate/calbridge/config"
	"github.com/tazhate/calbridge/internal/app"
	"github.com/tazhate/calbridge/internal/logger"
)

// cli holds the state shared by subcommands for one invocation
type cli struct {
	cfg    *config.Config
	app    *app.App
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "calctl",
		Short: "Operator CLI for calbridge calendars",
		Long: `calctl talks to the configured calendar provider and selection store
using the same settings as the bot (.env and environment).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}
	root.SetVersionTemplate(`{{printf "calctl version %s\n" .Version}}`)

	root.AddCommand(newGrantCmd(c))
	root.AddCommand(newCalendarsCmd(c))
	root.AddCommand(newEventsCmd(c))
	root.AddCommand(newSelectCmd(c))
	root.AddCommand(newUnselectCmd(c))

	return root
}

func (c *cli) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	l, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, l)
	if err != nil {
		return err
	}
	c.cfg, c.app, c.logger = cfg, a, l
	return nil
}

func (c *cli) close() error {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if c.app != nil {
		return c.app.Close()
	}
	return nil
}

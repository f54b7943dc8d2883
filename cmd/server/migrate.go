package main

import (
	"fmt"
	"strconv"

	"zhutalk/internal/config"
	"zhutalk/internal/db"
	"zhutalk/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(gdb *gorm.DB) error {
			if err := db.MigrateUp(gdb); err != nil {
				return err
			}
			log.Info().Msg("Migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[0], err)
			}
			steps = n
		}
		return withDB(func(gdb *gorm.DB) error {
			if err := db.MigrateDown(gdb, steps); err != nil {
				return err
			}
			log.Info().Int("steps", steps).Msg("Migrations rolled back")
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

// withDB loads config, sets up logging and opens the database for one-shot commands.
func withDB(fn func(gdb *gorm.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	return fn(gdb)
}

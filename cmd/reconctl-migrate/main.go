// Command reconctl-migrate applies the Postgres schema migrations embedded
// by pkg/migrations using goose. It replaces the teacher's BoltDB-specific
// warren-migrate tool (there is no BoltDB store in this domain) but keeps
// its dry-run-by-default, explicit-flag-to-apply posture.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/xingrin/reconctl/pkg/config"
	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/migrations"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var dryRun bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reconctl-migrate",
	Short:   "reconctl-migrate applies the control plane's Postgres schema migrations",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("reconctl-migrate version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	cobra.OnInitialize(initLogging)

	upCmd.Flags().BoolVar(&dryRun, "dry-run", true, "print pending migrations without applying them; pass --dry-run=false to apply")

	rootCmd.AddCommand(upCmd, downCmd, statusCmd)
}

func initLogging() {
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: os.Getenv("LOG_JSON") != "false"})
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "apply all pending migrations (dry-run unless --dry-run=false)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		if dryRun {
			pending, err := goose.CollectMigrations(migrations.Dir, 0, goose.MaxVersion)
			if err != nil {
				return fmt.Errorf("reconctl-migrate: collect migrations: %w", err)
			}
			current, err := goose.GetDBVersion(db)
			if err != nil {
				return fmt.Errorf("reconctl-migrate: read current version: %w", err)
			}
			for _, m := range pending {
				if m.Version > current {
					log.Logger.Info().Int64("version", m.Version).Str("source", m.Source).Msg("pending migration (dry run, not applied)")
				}
			}
			return nil
		}

		if err := goose.UpContext(ctx, db, migrations.Dir); err != nil {
			return fmt.Errorf("reconctl-migrate: up: %w", err)
		}
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "roll back the most recently applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := goose.DownContext(context.Background(), db, migrations.Dir); err != nil {
			return fmt.Errorf("reconctl-migrate: down: %w", err)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print the applied/pending state of every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return goose.StatusContext(context.Background(), db, migrations.Dir)
	},
}

func openDB() (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("reconctl-migrate: load config: %w", err)
	}
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("reconctl-migrate: open db: %w", err)
	}
	return db, nil
}

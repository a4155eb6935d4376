// Command attendance runs maintenance tasks: monthly reports, migrations and seeding.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"schoolattendance/internal/config"
	"schoolattendance/internal/logging"
	"schoolattendance/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("read .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()

	if err := newRootCmd(cfg, lg.Base).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		lg.Closer()
		os.Exit(1)
	}
}

type cli struct {
	cfg config.App
	log *zap.Logger
}

func newRootCmd(cfg config.App, lg *zap.Logger) *cobra.Command {
	c := &cli{cfg: cfg, log: lg}
	root := &cobra.Command{
		Use:           "attendance",
		Short:         "School attendance maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres:// URL or sqlite file path")
	root.AddCommand(c.reportCmd(), c.migrateCmd(), c.seedCmd())
	return root
}

// open connects and migrates, so every command works on an empty database.
func (c *cli) open(cmd *cobra.Command) (*store.DB, error) {
	db, err := store.NewDB(c.cfg.DatabaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(cmd.Context()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

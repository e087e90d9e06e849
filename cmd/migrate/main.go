package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/bookledger/internal/platform/db"
	"github.com/odyssey-erp/bookledger/migrations"
)

type config struct {
	PGDSN string `envconfig:"PG_DSN" required:"true"`
}

func main() {
	down := flag.Int("down", 0, "roll back N migrations (-1 rolls back everything)")
	force := flag.Int("force", -1, "mark VERSION as applied without running it")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if err := run(logger, *down, *force); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, down, force int) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return err
	}

	m, err := db.NewMigrator(migrations.FS, cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()

	switch {
	case force >= 0:
		return m.Force(force)
	case down < 0:
		return m.Down(0)
	case down > 0:
		return m.Down(down)
	}
	if err := m.Up(); err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	return nil
}

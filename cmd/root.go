// Package cmd defines the tome command line interface.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/tome/internal/bootstrap"
	"github.com/lepinkainen/tome/internal/config"
	"github.com/lepinkainen/tome/internal/datastore"
	"github.com/lepinkainen/tome/internal/enrich"
	"github.com/lepinkainen/tome/internal/metadata"
	"github.com/lepinkainen/tome/internal/server"
)

// CLI represents the complete command structure for the tome application
type CLI struct {
	// Global flags
	DBFile      string `help:"Path to catalog SQLite database file (overrides config)"`
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`
	DebugDB     bool   `help:"Expose the /debug/db introspection endpoint"`

	Serve  ServeCmd  `cmd:"" help:"Run the catalog HTTP server"`
	Enrich EnrichCmd `cmd:"" help:"Backfill missing covers and descriptions, then exit"`
}

// ServeCmd runs migrations and the bootstrap importers, then serves HTTP.
type ServeCmd struct {
	Port int `short:"p" help:"HTTP listen port"`
}

// EnrichCmd runs one enrichment pass over the catalog.
type EnrichCmd struct{}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging()
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("tome"),
		kong.Description("A personal book catalog with external metadata enrichment."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)

	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	// Cache defaults
	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h") // 30 days

	// Enable environment variable support
	viper.AutomaticEnv()
	if err := viper.BindEnv("database.file", "DB_FILE"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}
	if err := viper.BindEnv("server.port", "PORT"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}
	if err := viper.BindEnv("debug.db", "DEBUG_DB"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	// Initialize global config
	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	config.SetDBFile(cli.DBFile)
	if cli.DebugDB {
		config.DebugDB = true
	}

	// Update cache config
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
}

// openStore opens the catalog database, runs migrations and the one-time
// bootstrap importers. Any migration failure aborts startup.
func openStore(ctx context.Context) (*datastore.Store, error) {
	if err := os.MkdirAll("./data", 0o755); err != nil {
		return nil, err
	}

	store, err := datastore.Open(config.DBFile)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx, config.MigrationsDir); err != nil {
		_ = store.Close()
		return nil, err
	}

	if n, err := bootstrap.ReconcileLegacy(ctx, store); err != nil {
		slog.Warn("Legacy reconciliation failed", "error", err)
	} else if n > 0 {
		slog.Info("Imported books from legacy table", "count", n)
	}

	if imported, total, err := bootstrap.ImportSeed(ctx, store, config.SeedPaths); err != nil {
		slog.Warn("Seed import failed", "error", err)
	} else if total > 0 {
		slog.Info("Imported books from seed file", "imported", imported, "total", total)
	}

	return store, nil
}

func (s *ServeCmd) Run() error {
	config.SetPort(s.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	resolver := metadata.NewResolver()
	runner := enrich.NewRunner(store, resolver)

	srv := server.New(store, resolver, runner, server.DefaultOptions())
	return srv.ListenAndServe(ctx, config.Port)
}

func (e *EnrichCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runner := enrich.NewRunner(store, metadata.NewResolver())
	updated, err := runner.EnrichAll(ctx)
	if err != nil {
		return err
	}
	slog.Info("Enrichment complete", "updated", updated)
	return nil
}

func initLogging() {
	// Create a human-readable handler for logging
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: slog.LevelInfo,
	})

	// Set the default logger
	slog.SetDefault(slog.New(handler))
}

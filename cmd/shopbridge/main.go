package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/shopbridge/shopbridge/internal/cli"
	"github.com/shopbridge/shopbridge/internal/config/boltdb"
	"github.com/shopbridge/shopbridge/internal/crypto"
	"github.com/shopbridge/shopbridge/internal/cursor"
	"github.com/shopbridge/shopbridge/internal/store/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// .env is optional; flags and stored config take precedence
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", envDefault("SHOPBRIDGE_CONFIG", "shopbridge-config.db"), "Path to config database")
	dbPath := flag.String("db", envDefault("SHOPBRIDGE_DB", "shopbridge.db"), "Path to record database")
	keyfilePath := flag.String("keyfile", envDefault("SHOPBRIDGE_KEYFILE", "shopbridge.key"), "Path to credential key file")
	pages := flag.Int("pages", 1, "Follow up to N pagination tokens per run")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	logger := newLogger(*verbose)

	configStore, err := boltdb.New(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open config database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := configStore.Close(); err != nil {
			slog.Error("failed to close config database", "error", err)
		}
	}()

	sealer, err := crypto.NewSealerFromKeyfile(*keyfilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load key file: %v\n", err)
		os.Exit(1)
	}

	recordStore, err := sqlite.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open record database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := recordStore.Close(); err != nil {
			slog.Error("failed to close record database", "error", err)
		}
	}()

	app := &cli.App{
		Config:  configStore,
		Sealer:  sealer,
		Store:   recordStore,
		Cursors: cursor.NewManager(configStore),
		Logger:  logger,
		Pages:   *pages,
	}

	if err := dispatch(ctx, app, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, app *cli.App, args []string) error {
	switch args[0] {
	case "sync-products":
		return app.RunSyncProducts(ctx)
	case "sync-orders":
		return app.RunSyncOrders(ctx)
	case "export-products":
		return app.RunExportProducts(ctx)
	case "push-updates":
		return app.RunPushUpdates(ctx)
	case "push-inventory":
		return app.RunPushInventory(ctx)
	case "status":
		return app.RunStatus(ctx)
	case "config":
		return dispatchConfig(ctx, app, args[1:])
	case "reset-cursors":
		return app.RunResetCursors(ctx)
	case "cleanup":
		return app.RunCleanup(ctx)
	default:
		cli.PrintUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func dispatchConfig(ctx context.Context, app *cli.App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("config requires a subcommand: get, set, set-token, test")
	}

	switch args[0] {
	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: config get <key>")
		}
		return app.RunConfigGet(ctx, args[1])
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: config set <key> <value>")
		}
		return app.RunConfigSet(ctx, args[1], args[2])
	case "set-token":
		return app.RunConfigSetToken(ctx)
	case "test":
		return app.RunConfigTest(ctx)
	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose || strings.EqualFold(os.Getenv("SHOPBRIDGE_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printVersion() {
	fmt.Printf("ShopBridge\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

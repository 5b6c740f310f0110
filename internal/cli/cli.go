// Package cli implements the shopbridge command surface: sync entry points,
// configuration management and status reporting.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/shopbridge/shopbridge/internal/config"
	"github.com/shopbridge/shopbridge/internal/crypto"
	"github.com/shopbridge/shopbridge/internal/cursor"
	"github.com/shopbridge/shopbridge/internal/engine"
	"github.com/shopbridge/shopbridge/internal/shopify"
	"github.com/shopbridge/shopbridge/internal/store"
)

// App bundles the dependencies every command needs.
type App struct {
	Config  config.Store
	Sealer  *crypto.Sealer
	Store   store.Store
	Cursors *cursor.Manager
	Logger  *slog.Logger

	// Pages enables chunked mode: follow up to this many continuation
	// pages within one invocation.
	Pages int
}

// newEngine loads and validates the settings and builds the sync engine.
func (a *App) newEngine(ctx context.Context) (*engine.Engine, error) {
	eng, _, err := a.newEngineWithSettings(ctx)
	return eng, err
}

func (a *App) newEngineWithSettings(ctx context.Context) (*engine.Engine, config.Settings, error) {
	settings, err := a.loadSettings(ctx)
	if err != nil {
		return nil, settings, err
	}

	client := shopify.NewClient(shopify.Config{
		StoreURL:    settings.StoreURL,
		AccessToken: settings.AccessToken,
		APIVersion:  settings.APIVersion,
	}, a.Logger)

	flags := engine.Flags{
		AutoPublish:      settings.AutoPublish,
		AutoExport:       settings.AutoExport,
		InvoiceOnPayment: settings.InvoiceOnPayment,
		CreatePortalUser: settings.CreatePortalUser,
	}

	eng := engine.New(client, a.Store, a.Cursors, flags, a.Logger)
	eng.SetPageCap(a.Pages)
	return eng, settings, nil
}

func (a *App) loadSettings(ctx context.Context) (config.Settings, error) {
	settings, err := config.Load(ctx, a.Config, a.Sealer)
	if err != nil {
		return settings, &engine.ConfigError{Err: err}
	}
	if err := settings.Validate(); err != nil {
		return settings, &engine.ConfigError{Err: err}
	}
	return settings, nil
}

// newClient builds the remote client without requiring a full engine.
func (a *App) newClient(ctx context.Context) (*shopify.Client, error) {
	settings, err := a.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	return shopify.NewClient(shopify.Config{
		StoreURL:    settings.StoreURL,
		AccessToken: settings.AccessToken,
		APIVersion:  settings.APIVersion,
	}, a.Logger), nil
}

// PrintUsage writes the command overview.
func PrintUsage() {
	fmt.Println("shopbridge - incremental store synchronization")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  shopbridge [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version        Show version information")
	fmt.Println("  --config PATH    Path to the config database (default: shopbridge-config.db)")
	fmt.Println("  --db PATH        Path to the record database (default: shopbridge.db)")
	fmt.Println("  --keyfile PATH   Path to the credential key file (default: shopbridge.key)")
	fmt.Println("  --pages N        Follow up to N pagination tokens per run (default: 1)")
	fmt.Println()
	fmt.Println("Sync commands (one bounded batch per invocation):")
	fmt.Println("  sync-products    Pull remote product changes into the local store")
	fmt.Println("  sync-orders      Pull remote orders into the local store")
	fmt.Println("  export-products  Create remote products for unlinked local ones")
	fmt.Println("  push-updates     Push locally modified linked products")
	fmt.Println("  push-inventory   Push local stock levels")
	fmt.Println()
	fmt.Println("Management commands:")
	fmt.Println("  status                   Show sync progress and recent runs")
	fmt.Println("  config get <key>         Print a configuration value")
	fmt.Println("  config set <key> <val>   Store a configuration value")
	fmt.Println("  config set-token         Store the access token (hidden prompt)")
	fmt.Println("  config test              Verify the remote connection")
	fmt.Println("  reset-cursors            Clear sync watermarks and page tokens")
	fmt.Println("  cleanup                  Delete synced placeholder records and reset cursors")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  shopbridge config set shopify.store_url https://myshop.myshopify.com")
	fmt.Println("  shopbridge config set-token")
	fmt.Println("  shopbridge config test")
	fmt.Println("  shopbridge sync-products")
	fmt.Println("  shopbridge --pages 10 sync-products")
}

// readInput reads one trimmed line from stdin.
func readInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readSecret reads a line without echoing it.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/shopbridge/shopbridge/internal/engine"
)

// RunSyncProducts pulls one bounded batch of remote product changes. When
// the auto-export flag is set, a completed pull is followed by an export
// pass for local products that have no remote counterpart yet.
func (a *App) RunSyncProducts(ctx context.Context) error {
	eng, settings, err := a.newEngineWithSettings(ctx)
	if err != nil {
		return err
	}

	report := eng.SyncProducts(ctx)
	if err := printReport(report); err != nil {
		return err
	}
	if settings.AutoExport {
		return printReport(eng.ExportProducts(ctx))
	}
	return nil
}

// RunSyncOrders pulls one bounded batch of remote orders.
func (a *App) RunSyncOrders(ctx context.Context) error {
	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	return printReport(eng.SyncOrders(ctx))
}

// RunExportProducts creates remote products for local templates that carry
// no external reference yet.
func (a *App) RunExportProducts(ctx context.Context) error {
	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	return printReport(eng.ExportProducts(ctx))
}

// RunPushUpdates pushes locally modified linked products to the remote store.
func (a *App) RunPushUpdates(ctx context.Context) error {
	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	return printReport(eng.PushUpdates(ctx))
}

// RunPushInventory pushes local stock levels for linked variants.
func (a *App) RunPushInventory(ctx context.Context) error {
	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	return printReport(eng.PushInventory(ctx))
}

func printReport(r engine.RunReport) error {
	fmt.Printf("%s %s: %s\n", r.Direction, r.Kind, r.Status)
	fmt.Printf("  succeeded: %d\n", r.Succeeded)
	fmt.Printf("  failed:    %d\n", r.Failed)
	if r.Skipped > 0 {
		fmt.Printf("  skipped:   %d\n", r.Skipped)
	}
	if r.Message != "" {
		fmt.Printf("  %s\n", r.Message)
	}
	if !r.OK() {
		return fmt.Errorf("%s %s sync did not complete", r.Direction, r.Kind)
	}
	return nil
}

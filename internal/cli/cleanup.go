package cli

import (
	"context"
	"fmt"
)

// externalTagPrefix matches every tag the sync stamps on local records,
// including variant and placeholder tags.
const externalTagPrefix = "SHOPIFY_"

// RunResetCursors clears all watermarks and page tokens so the next sync
// starts from the default windows.
func (a *App) RunResetCursors(ctx context.Context) error {
	if err := a.Cursors.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset cursors: %w", err)
	}
	fmt.Println("Sync cursors reset")
	return nil
}

// RunCleanup deletes locally synced records that exist only as mirrors of
// remote data, then resets the cursors. Records that carry tags beyond the
// sync's own are kept. Destructive; requires confirmation.
func (a *App) RunCleanup(ctx context.Context) error {
	answer, err := readInput("Delete all synced mirror records and reset cursors? [y/N]: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if answer != "y" && answer != "Y" {
		fmt.Println("Cleanup aborted")
		return nil
	}

	deleted, err := a.Store.DeleteTemplatesByTagPrefix(ctx, externalTagPrefix)
	if err != nil {
		return fmt.Errorf("failed to delete synced templates: %w", err)
	}
	if err := a.Cursors.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset cursors: %w", err)
	}

	fmt.Printf("Deleted %d synced templates, cursors reset\n", deleted)
	return nil
}

package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopbridge/shopbridge/internal/config"
	"github.com/shopbridge/shopbridge/internal/cursor"
)

const recentRunLimit = 10

// RunStatus prints sync progress: local counts against remote totals,
// cursor positions and the most recent runs.
func (a *App) RunStatus(ctx context.Context) error {
	localProducts, err := a.Store.CountTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to count templates: %w", err)
	}
	localOrders, err := a.Store.CountOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to count orders: %w", err)
	}

	remoteProducts := a.remoteCount(ctx, config.KeyCachedProductCount, func(ctx context.Context) (int64, error) {
		client, err := a.newClient(ctx)
		if err != nil {
			return 0, err
		}
		return client.CountProducts(ctx)
	})
	remoteOrders := a.remoteCount(ctx, config.KeyCachedOrderCount, func(ctx context.Context) (int64, error) {
		client, err := a.newClient(ctx)
		if err != nil {
			return 0, err
		}
		return client.CountOrders(ctx)
	})

	fmt.Println("Sync status")
	fmt.Printf("  products: %d local / %s remote\n", localProducts, remoteProducts)
	fmt.Printf("  orders:   %d local / %s remote\n", localOrders, remoteOrders)

	pending, err := a.Store.ListUntaggedTemplates(ctx, externalTagPrefix, recentRunLimit+1)
	if err == nil && len(pending) > 0 {
		if len(pending) > recentRunLimit {
			fmt.Printf("  pending export: %d+ templates\n", recentRunLimit)
		} else {
			fmt.Printf("  pending export: %d templates\n", len(pending))
		}
	}

	a.printCursors(ctx)
	return a.printRecentRuns(ctx)
}

// remoteCount fetches a live remote total and caches it; when the remote is
// unreachable it falls back to the last cached value.
func (a *App) remoteCount(ctx context.Context, cacheKey string, fetch func(context.Context) (int64, error)) string {
	count, err := fetch(ctx)
	if err == nil {
		if serr := a.Config.Set(ctx, cacheKey, strconv.FormatInt(count, 10)); serr != nil {
			a.Logger.Warn("failed to cache remote count", "key", cacheKey, "error", serr)
		}
		return strconv.FormatInt(count, 10)
	}

	a.Logger.Warn("remote count unavailable", "key", cacheKey, "error", err)
	cached, cerr := a.Config.GetDefault(ctx, cacheKey, "")
	if cerr != nil || cached == "" {
		return "unknown"
	}
	return cached + " (cached)"
}

func (a *App) printCursors(ctx context.Context) {
	streams := []struct {
		label string
		kind  cursor.Kind
		dir   cursor.Direction
	}{
		{"products inbound", cursor.KindProduct, cursor.Inbound},
		{"orders inbound", cursor.KindOrder, cursor.Inbound},
		{"products outbound", cursor.KindProduct, cursor.Outbound},
	}

	fmt.Println("Cursors")
	for _, s := range streams {
		ts, ok, err := a.Cursors.Watermark(ctx, s.kind, s.dir)
		switch {
		case err != nil:
			fmt.Printf("  %-18s error: %v\n", s.label, err)
		case !ok:
			fmt.Printf("  %-18s never run\n", s.label)
		default:
			fmt.Printf("  %-18s %s\n", s.label, ts.Format(time.RFC3339))
		}
	}
}

func (a *App) printRecentRuns(ctx context.Context) error {
	runs, err := a.Store.LatestSyncRuns(ctx, recentRunLimit)
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No sync runs recorded")
		return nil
	}

	fmt.Println("Recent runs")
	for _, r := range runs {
		fmt.Printf("  %s  %-8s %-8s %-9s ok=%d failed=%d",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Direction, r.Status, r.Succeeded, r.Failed)
		if r.Message != "" {
			fmt.Printf("  %s", r.Message)
		}
		fmt.Println()
	}
	return nil
}

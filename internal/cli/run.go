package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/sitefetch/internal/config"
	"github.com/ppiankov/sitefetch/internal/store"
	"github.com/spf13/cobra"
)

var runEvery string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every configured source",
	Long:  "run fetches Bluesky posts and then YouTube channels, skipping whichever is not configured.",
	RunE:  runAction,
}

// runOnceAction performs one full fetch. Tests replace it.
var runOnceAction = runOnce

func init() {
	runCmd.Flags().StringVar(&runEvery, "every", "", "repeat at this interval (e.g. 30m) until interrupted")
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	interval, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if interval == 0 {
		return runOnceAction(ctx)
	}
	return runWatch(ctx, interval, func() error {
		return runOnceAction(ctx)
	})
}

func parseRunEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--every must be positive, got %s", s)
	}
	return d, nil
}

// runWatch calls fn immediately and then on every tick until ctx is done.
// Errors from fn are reported and do not stop the loop.
func runWatch(ctx context.Context, interval time.Duration, fn func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(); err != nil {
			fmt.Printf("warning: run failed: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	log := newLogger()
	var errs []error

	if cfg.Bluesky.Configured() {
		if err := fetchBluesky(ctx, cfg, db, log); err != nil {
			errs = append(errs, fmt.Errorf("bluesky: %w", err))
		}
	} else {
		fmt.Println("Skipping Bluesky: bluesky.handle is not configured.")
	}

	if cfg.YouTube.Configured() {
		if err := fetchYouTube(ctx, cfg, db, log); err != nil {
			errs = append(errs, fmt.Errorf("youtube: %w", err))
		}
	} else {
		fmt.Println("Skipping YouTube: youtube.channels is empty.")
	}

	if err := pruneArchive(ctx, db, cfg.Storage.RetainDays); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func pruneArchive(ctx context.Context, db *store.Store, retainDays int) error {
	pruned, err := db.PruneOld(ctx, retainDays)
	if err != nil {
		return fmt.Errorf("prune archive: %w", err)
	}
	if pruned > 0 {
		fmt.Printf("Pruned %d archive rows older than %d days\n", pruned, retainDays)
	}
	return nil
}

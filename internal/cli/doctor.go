package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/sitefetch/internal/config"
	"github.com/ppiankov/sitefetch/internal/store"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, credentials, archive and site directory",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "%s: %v", config.DefaultConfigFile, err)
		ok = false
	} else {
		printCheck(true, "%s (bluesky: %s, %d youtube channels)",
			config.DefaultConfigFile, blueskyTarget(cfg.Bluesky), len(cfg.YouTube.Channels))
	}

	if cfg != nil && !checkCredentials(cfg) {
		ok = false
	}

	// Site directory
	if err := checkWritable(siteDir); err != nil {
		printCheck(false, "site directory %s: %v", siteDir, err)
		ok = false
	} else {
		printCheck(true, "site directory %s", siteDir)
	}

	// Database
	if cfg != nil {
		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			printCheck(false, "database: %v", err)
			ok = false
		} else {
			defer func() { _ = db.Close() }()
			printCheck(true, "database %s", cfg.Storage.Path)
			reportArchive(cmd.Context(), db)
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func blueskyTarget(b config.BlueskyConfig) string {
	if !b.Configured() {
		return "off"
	}
	return "@" + b.Handle
}

func checkCredentials(cfg *config.Config) bool {
	ok := true
	if cfg.Bluesky.Configured() {
		if cfg.Bluesky.AppPassword == "" {
			printCheck(false, "bluesky app password (set %s)", cfg.Bluesky.AppPasswordEnv)
			ok = false
		} else {
			printCheck(true, "bluesky app password from %s", cfg.Bluesky.AppPasswordEnv)
		}
		if cfg.Bluesky.Username == "" {
			printInfo("%s not set, logging in as %s", cfg.Bluesky.UsernameEnv, cfg.Bluesky.Handle)
		}
	}
	if cfg.YouTube.Configured() {
		if cfg.YouTube.APIKey == "" {
			printInfo("%s not set, youtube uses channel feeds without live stream details", cfg.YouTube.APIKeyEnv)
		} else {
			printCheck(true, "youtube api key from %s", cfg.YouTube.APIKeyEnv)
		}
	}
	return ok
}

// checkWritable creates and removes a temp file in dir.
func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}
	f, err := os.CreateTemp(dir, ".sitefetch-doctor-*")
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(f.Name())
}

func reportArchive(ctx context.Context, db *store.Store) {
	if ctx == nil {
		ctx = context.Background()
	}
	counts, err := db.Counts(ctx)
	if err != nil {
		return
	}
	printInfo("archive: %s runs, %s posts, %s videos",
		humanize.Comma(int64(counts.Runs)), humanize.Comma(int64(counts.Posts)), humanize.Comma(int64(counts.Videos)))

	runs, err := db.RecentRuns(ctx, 1, "")
	if err != nil || len(runs) == 0 {
		return
	}
	last := runs[0]
	status := "ok"
	if last.Error != "" {
		status = "failed: " + last.Error
	}
	printInfo("last run: %s %s %s (%s)", last.Kind, last.Target, humanize.Time(last.StartedAt), status)
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}

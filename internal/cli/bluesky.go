package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ppiankov/sitefetch/internal/bluesky"
	"github.com/ppiankov/sitefetch/internal/config"
	"github.com/ppiankov/sitefetch/internal/hugo"
	"github.com/ppiankov/sitefetch/internal/privacy"
	"github.com/ppiankov/sitefetch/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	blueskyLimit        int
	blueskyNoPagination bool
)

var blueskyCmd = &cobra.Command{
	Use:   "bluesky",
	Short: "Fetch recent Bluesky posts into data/bluesky.json",
	RunE:  blueskyAction,
}

func init() {
	blueskyCmd.Flags().IntVar(&blueskyLimit, "limit", 0, "number of posts to fetch (default bluesky.max_posts)")
	blueskyCmd.Flags().BoolVar(&blueskyNoPagination, "no-pagination", false, "fetch a single page only")
	rootCmd.AddCommand(blueskyCmd)
}

// newBlueskySource builds the feed source for a run. Tests replace it.
var newBlueskySource = func(cfg config.BlueskyConfig, log logrus.FieldLogger) bluesky.FeedSource {
	identifier := cfg.Username
	if identifier == "" {
		identifier = cfg.Handle
	}
	return bluesky.NewClient(bluesky.ClientConfig{
		PDS:         cfg.PDS,
		Identifier:  identifier,
		AppPassword: cfg.AppPassword,
		Timeout:     cfg.Timeout.Duration,
	}, log)
}

func blueskyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Bluesky.Configured() {
		return errors.New("bluesky.handle is not configured")
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	log := newLogger()
	if err := fetchBluesky(cmd.Context(), cfg, db, log); err != nil {
		return err
	}
	return pruneArchive(cmd.Context(), db, cfg.Storage.RetainDays)
}

func fetchBluesky(ctx context.Context, cfg *config.Config, db *store.Store, log logrus.FieldLogger) error {
	bc := cfg.Bluesky

	redactor, err := newRedactor(cfg.Privacy)
	if err != nil {
		return err
	}

	opts := bluesky.FetchOptions{
		TargetCount:      bc.MaxPosts,
		PageSizeLimit:    bc.PageSizeLimit,
		EnablePagination: bc.Paginate() && !blueskyNoPagination,
		MaxRequests:      bc.MaxRequests,
		Filter:           bc.Filter,
		MaxEmbedDepth:    bc.MaxEmbedDepth,
	}
	if blueskyLimit > 0 {
		opts.TargetCount = blueskyLimit
	}

	run, err := db.StartRun(ctx, store.KindBluesky, bc.Handle, time.Now())
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	fmt.Printf("Fetching up to %d posts from @%s...\n", opts.TargetCount, bc.Handle)
	res := bluesky.NewPaginator(newBlueskySource(bc, log), log).Fetch(ctx, bc.Handle, opts)
	if n := redactPosts(redactor, res.Posts); n > 0 {
		log.WithField("posts", n).Debug("redacted post text")
	}

	outcome := store.RunResult{
		Items:      len(res.Posts),
		Requests:   res.Requests,
		StopReason: string(res.Stop),
	}

	outPath := filepath.Join(siteDir, bc.Output)
	now := time.Now()
	if err := hugo.WriteBluesky(outPath, res.Posts, now); err != nil {
		if !errors.Is(err, hugo.ErrNoContent) {
			outcome.Err = err
			_ = db.FinishRun(ctx, run.ID, outcome, time.Now())
			return fmt.Errorf("write bluesky data: %w", err)
		}
		fmt.Println("No posts found to write. Existing data file left unchanged.")
	} else {
		fmt.Printf("Wrote %d posts to %s (%d requests, stop: %s)\n", len(res.Posts), outPath, res.Requests, res.Stop)
	}

	saved, err := db.SavePosts(ctx, run.ID, postInputs(res.Posts), now)
	if err != nil {
		outcome.Err = err
		_ = db.FinishRun(ctx, run.ID, outcome, time.Now())
		return fmt.Errorf("archive posts: %w", err)
	}
	if saved.New > 0 || saved.Changed > 0 {
		fmt.Printf("Archived %d new, %d changed posts\n", saved.New, saved.Changed)
	}

	if err := db.FinishRun(ctx, run.ID, outcome, time.Now()); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func newRedactor(p config.PrivacyConfig) (*privacy.Redactor, error) {
	if !p.Redact.Enabled || len(p.Redact.Patterns) == 0 {
		return nil, nil
	}
	r, err := privacy.New(p.Redact.Patterns)
	if err != nil {
		return nil, fmt.Errorf("compile redact patterns: %w", err)
	}
	return r, nil
}

// redactPosts scrubs post text in place and re-derives links and mentions
// from the scrubbed text. It returns how many posts changed.
func redactPosts(r *privacy.Redactor, posts []bluesky.PostRecord) int {
	if r.Len() == 0 {
		return 0
	}
	texts := make([]string, len(posts))
	for i := range posts {
		texts[i] = posts[i].Text
	}
	changed := r.ApplyAll(texts)
	if changed == 0 {
		return 0
	}
	for i, text := range texts {
		if text == posts[i].Text {
			continue
		}
		posts[i].Text = text
		posts[i].Links = bluesky.ExtractLinks(text)
		posts[i].Mentions = bluesky.ExtractMentions(text)
	}
	return changed
}

func postInputs(posts []bluesky.PostRecord) []store.PostInput {
	out := make([]store.PostInput, 0, len(posts))
	for _, p := range posts {
		record, err := json.Marshal(p)
		if err != nil {
			record = nil
		}
		kind := ""
		if p.Embed != nil {
			kind = string(p.Embed.Kind())
		}
		out = append(out, store.PostInput{
			URI:         p.URI,
			CID:         p.CID,
			Author:      p.Author.Handle,
			Text:        p.Text,
			URL:         p.URL,
			CreatedAt:   p.CreatedAt,
			LikeCount:   p.LikeCount,
			RepostCount: p.RepostCount,
			ReplyCount:  p.ReplyCount,
			EmbedKind:   kind,
			Record:      record,
		})
	}
	return out
}

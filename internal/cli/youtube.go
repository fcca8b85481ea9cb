package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/sitefetch/internal/config"
	"github.com/ppiankov/sitefetch/internal/hugo"
	"github.com/ppiankov/sitefetch/internal/store"
	"github.com/ppiankov/sitefetch/internal/youtube"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var youtubeCmd = &cobra.Command{
	Use:   "youtube",
	Short: "Fetch uploads for every configured YouTube channel",
	RunE:  youtubeAction,
}

func init() {
	rootCmd.AddCommand(youtubeCmd)
}

// newYouTubeSource picks the Data API when a key is set and the public
// channel feed otherwise. Tests replace it.
var newYouTubeSource = func(cfg config.YouTubeConfig, log logrus.FieldLogger) (youtube.Source, error) {
	if cfg.APIKey == "" {
		log.WithField("env", cfg.APIKeyEnv).Warn("no YouTube API key, using channel feeds without live stream details")
		return youtube.NewFeedLister(log), nil
	}
	return youtube.NewClient(cfg.APIKey, "", log)
}

func youtubeAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.YouTube.Configured() {
		return errors.New("youtube.channels is empty")
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	log := newLogger()
	if err := fetchYouTube(cmd.Context(), cfg, db, log); err != nil {
		return err
	}
	return pruneArchive(cmd.Context(), db, cfg.Storage.RetainDays)
}

// fetchYouTube processes each channel independently. A failing channel is
// recorded and reported, and the rest still run.
func fetchYouTube(ctx context.Context, cfg *config.Config, db *store.Store, log logrus.FieldLogger) error {
	yc := cfg.YouTube
	src, err := newYouTubeSource(yc, log)
	if err != nil {
		return fmt.Errorf("create youtube source: %w", err)
	}
	fetcher := youtube.NewFetcher(src, yc.StaleUpcomingDays, log)

	failed := 0
	for _, ch := range yc.Channels {
		if err := fetchChannel(ctx, fetcher, ch, yc.MaxResults, db, log); err != nil {
			fmt.Printf("warning: %s: %v\n", channelLabel(ch), err)
			failed++
		}
	}

	if failed == len(yc.Channels) {
		return fmt.Errorf("all %d channels failed", failed)
	}
	return nil
}

func fetchChannel(ctx context.Context, fetcher *youtube.Fetcher, ch config.ChannelConfig, maxResults int, db *store.Store, log logrus.FieldLogger) error {
	run, err := db.StartRun(ctx, store.KindYouTube, ch.ChannelID, time.Now())
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	fmt.Printf("Fetching videos for %s...\n", channelLabel(ch))
	data, err := fetcher.Fetch(ctx, ch.ChannelID, maxResults)
	if err != nil {
		log.WithError(err).WithField("channel_id", ch.ChannelID).Error("fetch channel failed")
		_ = db.FinishRun(ctx, run.ID, store.RunResult{Err: err}, time.Now())
		return err
	}

	if ch.Name != "" {
		data.ChannelSlug = hugo.Slug(ch.Name)
	}

	outcome := store.RunResult{Items: len(data.Videos)}
	now := time.Now()
	files, err := hugo.WriteChannel(siteDir, data, now)
	switch {
	case errors.Is(err, hugo.ErrNoContent):
		fmt.Printf("No videos found for %s. Existing files left unchanged.\n", channelLabel(ch))
	case err != nil:
		outcome.Err = err
		_ = db.FinishRun(ctx, run.ID, outcome, time.Now())
		return fmt.Errorf("write channel: %w", err)
	default:
		fmt.Printf("Wrote %d videos to %s and %s\n", len(data.Videos), files.Data, files.Page)
	}

	if _, err := db.SaveVideos(ctx, run.ID, videoInputs(data), now); err != nil {
		outcome.Err = err
		_ = db.FinishRun(ctx, run.ID, outcome, time.Now())
		return fmt.Errorf("archive videos: %w", err)
	}
	if err := db.FinishRun(ctx, run.ID, outcome, time.Now()); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func channelLabel(ch config.ChannelConfig) string {
	if ch.Name != "" {
		return fmt.Sprintf("%s (%s)", ch.Name, ch.ChannelID)
	}
	return ch.ChannelID
}

func videoInputs(data *youtube.ChannelData) []store.VideoInput {
	out := make([]store.VideoInput, 0, len(data.Videos))
	for _, v := range data.Videos {
		record, err := json.Marshal(v)
		if err != nil {
			record = nil
		}
		out = append(out, store.VideoInput{
			ID:          v.ID,
			ChannelID:   data.ChannelID,
			Title:       v.Title,
			URL:         v.URL,
			PublishedAt: v.PublishedAt,
			LiveStatus:  string(v.LiveStatus),
			Record:      record,
		})
	}
	return out
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/sitefetch/internal/config"
	"github.com/ppiankov/sitefetch/internal/hugo"
	"github.com/ppiankov/sitefetch/internal/youtube"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type stubChannels map[string]*youtube.ChannelData

func (s stubChannels) ChannelVideos(_ context.Context, channelID string, _ int) (*youtube.ChannelData, error) {
	data, ok := s[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", youtube.ErrChannelNotFound, channelID)
	}
	cp := *data
	cp.Videos = append([]youtube.Video(nil), data.Videos...)
	return &cp, nil
}

func useChannels(s stubChannels) {
	newYouTubeSource = func(config.YouTubeConfig, logrus.FieldLogger) (youtube.Source, error) {
		return s, nil
	}
}

func testChannel(now time.Time) *youtube.ChannelData {
	return &youtube.ChannelData{
		ChannelTitle: "Test Channel",
		ChannelID:    "UCtest123",
		Videos: []youtube.Video{
			{ID: "v1", Title: "Older", PublishedAt: now.Add(-48 * time.Hour), URL: "https://www.youtube.com/watch?v=v1", LiveStatus: youtube.LiveCompleted},
			{ID: "v2", Title: "Newer", PublishedAt: now.Add(-time.Hour), URL: "https://www.youtube.com/watch?v=v2"},
			{ID: "v1", Title: "Older", PublishedAt: now.Add(-48 * time.Hour), URL: "https://www.youtube.com/watch?v=v1"},
			{ID: "v3", Title: "Forgotten premiere", PublishedAt: now.AddDate(0, 0, -30), IsLiveStream: true, LiveStatus: youtube.LiveUpcoming},
		},
	}
}

func TestYouTubeAction_WritesChannelAndArchive(t *testing.T) {
	env := setupCLI(t, `
youtube:
  channels:
    - channel_id: UCtest123
      name: Main
    - channel_id: UCmissing
`)
	useChannels(stubChannels{"UCtest123": testChannel(time.Now())})

	out, err := captureStdout(t, func() error {
		return youtubeAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("youtube action: %v", err)
	}

	dataPath := hugo.ChannelDataPath(env.siteDir, "UCtest123")
	pagePath := hugo.ChannelPagePath(env.siteDir, "main")
	requireContains(t, out, "Fetching videos for Main (UCtest123)...")
	requireContains(t, out, "Wrote 2 videos to "+dataPath+" and "+pagePath)
	requireContains(t, out, "warning: UCmissing: youtube: channel not found")

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	var data youtube.ChannelData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ChannelSlug != "main" || len(data.Videos) != 2 {
		t.Fatalf("data = %+v", data)
	}
	if data.Videos[0].ID != "v2" || data.Videos[1].ID != "v1" {
		t.Errorf("order = %s, %s; want v2, v1", data.Videos[0].ID, data.Videos[1].ID)
	}

	page, err := os.ReadFile(pagePath)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	requireContains(t, string(page), `{{< youtube-channel "UCtest123" >}}`)

	st := openStoreForTest(t, env.dbPath)
	counts, _ := st.Counts(context.Background())
	if counts.Runs != 2 || counts.Videos != 2 {
		t.Errorf("counts = %+v, want 2 runs 2 videos", counts)
	}
	runs, _ := st.RecentRuns(context.Background(), 10, "youtube")
	failed := 0
	for _, r := range runs {
		if r.Error != "" {
			failed++
			if r.Target != "UCmissing" {
				t.Errorf("failed run target = %q", r.Target)
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed runs = %d, want 1", failed)
	}
}

func TestYouTubeAction_SlugFromConfigName(t *testing.T) {
	env := setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCtest123\n      name: My Videos\n")
	useChannels(stubChannels{"UCtest123": testChannel(time.Now())})

	out, err := captureStdout(t, func() error {
		return youtubeAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("youtube action: %v", err)
	}

	pagePath := hugo.ChannelPagePath(env.siteDir, "my-videos")
	requireContains(t, out, pagePath)
	if _, err := os.Stat(pagePath); err != nil {
		t.Fatalf("page: %v", err)
	}
	if _, err := os.Stat(hugo.ChannelPagePath(env.siteDir, "test-channel")); !os.IsNotExist(err) {
		t.Errorf("title-derived page should not exist, stat err = %v", err)
	}

	raw, err := os.ReadFile(hugo.ChannelDataPath(env.siteDir, "UCtest123"))
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	var data youtube.ChannelData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ChannelSlug != "my-videos" || data.ChannelTitle != "Test Channel" {
		t.Errorf("slug = %q, title = %q", data.ChannelSlug, data.ChannelTitle)
	}
}

func TestYouTubeAction_ArchiveFailureFinishesRun(t *testing.T) {
	env := setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCbad\n")
	useChannels(stubChannels{"UCbad": {
		ChannelTitle: "Bad",
		ChannelID:    "UCbad",
		Videos:       []youtube.Video{{Title: "No id", PublishedAt: time.Now().Add(-time.Hour)}},
	}})

	_, err := captureStdout(t, func() error {
		return youtubeAction(testCommand(), nil)
	})
	if err == nil {
		t.Fatal("expected the channel to fail")
	}

	st := openStoreForTest(t, env.dbPath)
	runs, _ := st.RecentRuns(context.Background(), 1, "youtube")
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].FinishedAt.IsZero() || !strings.Contains(runs[0].Error, "video id is required") {
		t.Errorf("run = %+v, want finished with archive error", runs[0])
	}
}

func TestYouTubeAction_AllChannelsFail(t *testing.T) {
	setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCmissing\n")
	useChannels(stubChannels{})

	_, err := captureStdout(t, func() error {
		return youtubeAction(testCommand(), nil)
	})
	if err == nil || !strings.Contains(err.Error(), "all 1 channels failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestYouTubeAction_EmptyChannelKeepsFiles(t *testing.T) {
	env := setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCempty\n")
	useChannels(stubChannels{"UCempty": {ChannelTitle: "Empty", ChannelID: "UCempty"}})

	out, err := captureStdout(t, func() error {
		return youtubeAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("youtube action: %v", err)
	}
	requireContains(t, out, "No videos found for UCempty. Existing files left unchanged.")
	if _, err := os.Stat(hugo.ChannelDataPath(env.siteDir, "UCempty")); !os.IsNotExist(err) {
		t.Errorf("data file should not exist, stat err = %v", err)
	}
}

func TestNewYouTubeSource_Selection(t *testing.T) {
	log, hook := test.NewNullLogger()

	src, err := newYouTubeSource(config.YouTubeConfig{APIKeyEnv: "YOUTUBE_API_KEY"}, log)
	if err != nil {
		t.Fatalf("keyless source: %v", err)
	}
	if _, ok := src.(*youtube.FeedLister); !ok {
		t.Errorf("keyless source = %T, want *youtube.FeedLister", src)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.WarnLevel {
		t.Errorf("expected a warning about the missing key, got %v", entry)
	}

	src, err = newYouTubeSource(config.YouTubeConfig{APIKey: "k"}, log)
	if err != nil {
		t.Fatalf("api source: %v", err)
	}
	if _, ok := src.(*youtube.Client); !ok {
		t.Errorf("api source = %T, want *youtube.Client", src)
	}
}

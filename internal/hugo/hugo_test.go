package hugo

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitefetch/internal/bluesky"
	"github.com/ppiankov/sitefetch/internal/youtube"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testPosts() []bluesky.PostRecord {
	return []bluesky.PostRecord{
		{
			URI:       "at://did:plc:abc/app.bsky.feed.post/2",
			Text:      "second <b>",
			CreatedAt: now.Add(-time.Hour),
			Author:    bluesky.Author{Handle: "alice.bsky.social", DisplayName: "Alice"},
			Links:     []string{},
			Mentions:  []string{},
		},
		{
			URI:       "at://did:plc:abc/app.bsky.feed.post/1",
			Text:      "first",
			CreatedAt: now.Add(-2 * time.Hour),
			Author:    bluesky.Author{Handle: "alice.bsky.social", DisplayName: "Alice"},
			Links:     []string{},
			Mentions:  []string{},
		},
	}
}

func TestEncodeBluesky(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeBluesky(&buf, testPosts(), now); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v\noutput: %s", err, buf.String())
	}
	if doc["post_count"] != float64(2) {
		t.Errorf("post_count = %v, want 2", doc["post_count"])
	}
	if doc["last_updated"] != "2024-06-15T12:00:00Z" {
		t.Errorf("last_updated = %v", doc["last_updated"])
	}
	if !strings.Contains(buf.String(), "\n  \"posts\": [") {
		t.Errorf("expected two-space indent:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "second <b>") {
		t.Error("html should not be escaped")
	}
}

func TestWriteBluesky(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "bluesky.json")

	if err := WriteBluesky(path, testPosts(), now); err != nil {
		t.Fatalf("WriteBluesky: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc BlueskyData
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.PostCount != 2 || len(doc.Posts) != 2 {
		t.Errorf("doc = %d/%d posts, want 2", doc.PostCount, len(doc.Posts))
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only bluesky.json (temp file leaked?)", len(entries))
	}
}

func TestWriteBluesky_EmptyLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bluesky.json")
	if err := os.WriteFile(path, []byte(`{"prior":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	err := WriteBluesky(path, nil, now)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != `{"prior":true}` {
		t.Errorf("prior file changed: %s", data)
	}
}

func testChannel() *youtube.ChannelData {
	return &youtube.ChannelData{
		ChannelTitle: "Test Channel",
		ChannelID:    "UCtest123",
		ChannelSlug:  "test-channel",
		Videos: []youtube.Video{{
			ID:          "video1",
			Title:       "Test Video 1",
			Description: "Description 1",
			PublishedAt: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
			Thumbnail:   "https://example.com/thumb1.jpg",
			URL:         "https://www.youtube.com/watch?v=video1",
		}},
	}
}

func TestWriteChannel(t *testing.T) {
	site := t.TempDir()

	files, err := WriteChannel(site, testChannel(), now)
	if err != nil {
		t.Fatalf("WriteChannel: %v", err)
	}
	if files.Page != filepath.Join(site, "content", "youtube", "test-channel", "_index.md") {
		t.Errorf("page = %s", files.Page)
	}
	if files.Data != filepath.Join(site, "data", "youtube", "UCtest123.json") {
		t.Errorf("data = %s", files.Data)
	}

	page, err := os.ReadFile(files.Page)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	content := string(page)
	for _, want := range []string{
		"title: Test Channel - YouTube Videos",
		"type: youtube-channel",
		"channel_id: UCtest123",
		"channel_slug: test-channel",
		"video_count: 1",
		"# Test Channel",
		`{{< youtube-channel "UCtest123" >}}`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("page missing %q\n%s", want, content)
		}
	}

	raw, err := os.ReadFile(files.Data)
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	var doc youtube.ChannelData
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.ChannelTitle != "Test Channel" || doc.ChannelSlug != "test-channel" || len(doc.Videos) != 1 {
		t.Errorf("data = %+v", doc)
	}
}

func TestEncodeChannelPage_FrontMatterParses(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeChannelPage(&buf, testChannel(), now); err != nil {
		t.Fatalf("encode: %v", err)
	}

	parts := strings.SplitN(buf.String(), "---\n", 3)
	if len(parts) != 3 || parts[0] != "" {
		t.Fatalf("page does not start with front matter:\n%s", buf.String())
	}
	var fm channelFrontMatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		t.Fatalf("front matter: %v", err)
	}
	if !fm.Date.Equal(now) || fm.VideoCount != 1 || fm.Type != "youtube-channel" {
		t.Errorf("front matter = %+v", fm)
	}
}

func TestWriteChannel_DerivesSlug(t *testing.T) {
	data := testChannel()
	data.ChannelSlug = ""
	data.ChannelTitle = "Sam does a thing!"

	files, err := WriteChannel(t.TempDir(), data, now)
	if err != nil {
		t.Fatalf("WriteChannel: %v", err)
	}
	if filepath.Base(filepath.Dir(files.Page)) != "sam-does-a-thing" {
		t.Errorf("page = %s", files.Page)
	}
}

func TestWriteChannel_NoVideos(t *testing.T) {
	site := t.TempDir()
	data := testChannel()
	data.Videos = nil

	if _, err := WriteChannel(site, data, now); !errors.Is(err, ErrNoContent) {
		t.Errorf("err = %v, want ErrNoContent", err)
	}
	if _, err := os.Stat(filepath.Join(site, "content")); !os.IsNotExist(err) {
		t.Error("content dir should not be created")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sam does a thing", "sam-does-a-thing"},
		{"Four Star Captain", "four-star-captain"},
		{"Channel Name!@#", "channel-name"},
		{"Multiple   Spaces", "multiple-spaces"},
		{"Hyphens-and-spaces", "hyphens-and-spaces"},
		{"", ""},
		{"123 Numbers", "123-numbers"},
		{"  --Trim me--  ", "trim-me"},
		{"Ｆｕｌｌ Width", "full-width"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package hugo

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitefetch/internal/youtube"
)

const channelPageType = "youtube-channel"

type channelFrontMatter struct {
	Title        string    `yaml:"title"`
	Date         time.Time `yaml:"date"`
	Type         string    `yaml:"type"`
	ChannelID    string    `yaml:"channel_id"`
	ChannelTitle string    `yaml:"channel_title"`
	ChannelSlug  string    `yaml:"channel_slug"`
	VideoCount   int       `yaml:"video_count"`
}

// ChannelFiles are the paths written for one channel.
type ChannelFiles struct {
	Data string
	Page string
}

// ChannelDataPath returns data/youtube/<id>.json under siteDir.
func ChannelDataPath(siteDir, channelID string) string {
	return filepath.Join(siteDir, DataDir, "youtube", channelID+".json")
}

// ChannelPagePath returns content/youtube/<slug>/_index.md under siteDir.
func ChannelPagePath(siteDir, slug string) string {
	return filepath.Join(siteDir, ContentDir, "youtube", slug, "_index.md")
}

// EncodeChannelPage writes the channel section page with YAML front matter.
func EncodeChannelPage(w io.Writer, data *youtube.ChannelData, now time.Time) error {
	fm, err := yaml.Marshal(channelFrontMatter{
		Title:        data.ChannelTitle + " - YouTube Videos",
		Date:         now,
		Type:         channelPageType,
		ChannelID:    data.ChannelID,
		ChannelTitle: data.ChannelTitle,
		ChannelSlug:  data.ChannelSlug,
		VideoCount:   len(data.Videos),
	})
	if err != nil {
		return fmt.Errorf("front matter: %w", err)
	}

	_, err = fmt.Fprintf(w, "---\n%s---\n\n# %s\n\nLatest videos from my YouTube channel.\n\n{{< %s %q >}}\n",
		fm, data.ChannelTitle, channelPageType, data.ChannelID)
	return err
}

// WriteChannel writes the channel data file and its section page. A missing
// ChannelSlug is derived from the channel title, then the channel id. Channels without videos
// return ErrNoContent.
func WriteChannel(siteDir string, data *youtube.ChannelData, now time.Time) (ChannelFiles, error) {
	if data == nil || len(data.Videos) == 0 {
		return ChannelFiles{}, ErrNoContent
	}
	if data.ChannelSlug == "" {
		data.ChannelSlug = Slug(data.ChannelTitle)
	}
	if data.ChannelSlug == "" {
		data.ChannelSlug = Slug(data.ChannelID)
	}

	files := ChannelFiles{
		Data: ChannelDataPath(siteDir, data.ChannelID),
		Page: ChannelPagePath(siteDir, data.ChannelSlug),
	}

	if err := writeFileAtomic(files.Page, func(w io.Writer) error {
		return EncodeChannelPage(w, data, now)
	}); err != nil {
		return ChannelFiles{}, err
	}
	if err := writeFileAtomic(files.Data, func(w io.Writer) error {
		return encodeJSON(w, data)
	}); err != nil {
		return ChannelFiles{}, err
	}
	return files, nil
}

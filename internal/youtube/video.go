// Package youtube fetches the latest uploads of YouTube channels.
package youtube

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxResults        = 50
	DefaultStaleUpcomingDays = 7

	watchURLPrefix = "https://www.youtube.com/watch?v="
)

// ErrChannelNotFound is returned when the API knows no channel with the id.
var ErrChannelNotFound = errors.New("youtube: channel not found")

// LiveStatus classifies a live broadcast.
type LiveStatus string

const (
	LiveCompleted LiveStatus = "completed"
	LiveNow       LiveStatus = "live"
	LiveUpcoming  LiveStatus = "upcoming"
)

// Video is one channel upload.
type Video struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	PublishedAt  time.Time  `json:"published_at"`
	Thumbnail    string     `json:"thumbnail"`
	URL          string     `json:"url"`
	IsLiveStream bool       `json:"is_live_stream"`
	LiveStatus   LiveStatus `json:"live_status,omitempty"`
}

// ChannelData is everything written for one channel.
type ChannelData struct {
	ChannelTitle string  `json:"channel_title"`
	ChannelID    string  `json:"channel_id"`
	ChannelSlug  string  `json:"channel_slug,omitempty"`
	Videos       []Video `json:"videos"`
}

// Source lists a channel's recent uploads, unfiltered.
type Source interface {
	ChannelVideos(ctx context.Context, channelID string, maxResults int) (*ChannelData, error)
}

// Fetcher applies dedupe, stale-upcoming filtering and ordering on top of a
// Source.
type Fetcher struct {
	src       Source
	staleDays int
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewFetcher creates a Fetcher. staleDays <= 0 uses DefaultStaleUpcomingDays.
func NewFetcher(src Source, staleDays int, log logrus.FieldLogger) *Fetcher {
	if staleDays <= 0 {
		staleDays = DefaultStaleUpcomingDays
	}
	return &Fetcher{src: src, staleDays: staleDays, now: time.Now, log: log}
}

// Fetch returns channelID's filtered uploads.
func (f *Fetcher) Fetch(ctx context.Context, channelID string, maxResults int) (*ChannelData, error) {
	data, err := f.src.ChannelVideos(ctx, channelID, maxResults)
	if err != nil {
		return nil, err
	}
	log := f.log.WithField("channel_id", channelID)
	data.Videos = FilterVideos(data.Videos, f.now(), f.staleDays, log)
	return data, nil
}

// FilterVideos drops repeated ids and upcoming streams older than staleDays
// whole days, then sorts newest first.
func FilterVideos(videos []Video, now time.Time, staleDays int, log logrus.FieldLogger) []Video {
	seen := make(map[string]struct{}, len(videos))
	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}

		if v.LiveStatus == LiveUpcoming && ageDays(v.PublishedAt, now) > staleDays {
			log.WithField("video_id", v.ID).Infof("skipping old upcoming stream: %s", v.Title)
			continue
		}
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

func ageDays(published, now time.Time) int {
	return int(now.Sub(published).Hours() / 24)
}

func watchURL(id string) string {
	return watchURLPrefix + id
}

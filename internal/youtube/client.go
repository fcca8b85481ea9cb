package youtube

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAPIBase = "https://www.googleapis.com/youtube/v3"

	apiTimeout    = 30 * time.Second
	apiMaxResults = 50
)

// Client reads the YouTube Data API v3 with an API key.
type Client struct {
	http *resty.Client
	log  logrus.FieldLogger
}

// NewClient creates a Data API client. An empty baseURL uses DefaultAPIBase.
func NewClient(apiKey, baseURL string, log logrus.FieldLogger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("youtube: api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(apiTimeout)
	client.SetQueryParam("key", apiKey)

	return &Client{http: client, log: log}, nil
}

type thumbnail struct {
	URL string `json:"url"`
}

type thumbnails struct {
	Default *thumbnail `json:"default"`
	Medium  *thumbnail `json:"medium"`
	High    *thumbnail `json:"high"`
	Maxres  *thumbnail `json:"maxres"`
}

// best picks the largest available thumbnail.
func (t thumbnails) best() string {
	for _, th := range []*thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if th != nil && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

type channelsResponse struct {
	Items []struct {
		Snippet *struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails *struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	Items []struct {
		Snippet struct {
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string     `json:"title"`
			Description string     `json:"description"`
			PublishedAt string     `json:"publishedAt"`
			Thumbnails  thumbnails `json:"thumbnails"`
		} `json:"snippet"`
		LiveStreamingDetails *liveDetails `json:"liveStreamingDetails"`
	} `json:"items"`
}

type liveDetails struct {
	ActualStartTime string `json:"actualStartTime"`
	ActualEndTime   string `json:"actualEndTime"`
}

func (d *liveDetails) status() LiveStatus {
	switch {
	case d.ActualEndTime != "":
		return LiveCompleted
	case d.ActualStartTime != "":
		return LiveNow
	default:
		return LiveUpcoming
	}
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChannelVideos resolves the channel's uploads playlist and returns its
// latest videos with live streaming details.
func (c *Client) ChannelVideos(ctx context.Context, channelID string, maxResults int) (*ChannelData, error) {
	if maxResults <= 0 || maxResults > apiMaxResults {
		maxResults = apiMaxResults
	}

	var ch channelsResponse
	if err := c.get(ctx, "/channels", map[string]string{
		"part": "contentDetails,snippet",
		"id":   channelID,
	}, &ch); err != nil {
		return nil, fmt.Errorf("youtube: channel %s: %w", channelID, err)
	}
	if len(ch.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	info := ch.Items[0]
	if info.Snippet == nil || info.ContentDetails == nil || info.ContentDetails.RelatedPlaylists.Uploads == "" {
		return nil, fmt.Errorf("youtube: channel %s: unexpected API response structure", channelID)
	}

	var pl playlistItemsResponse
	if err := c.get(ctx, "/playlistItems", map[string]string{
		"part":       "snippet",
		"playlistId": info.ContentDetails.RelatedPlaylists.Uploads,
		"maxResults": strconv.Itoa(maxResults),
		"order":      "date",
	}, &pl); err != nil {
		return nil, fmt.Errorf("youtube: playlist items: %w", err)
	}

	data := &ChannelData{
		ChannelTitle: info.Snippet.Title,
		ChannelID:    channelID,
		Videos:       []Video{},
	}

	ids := make([]string, 0, len(pl.Items))
	for _, item := range pl.Items {
		if id := item.Snippet.ResourceID.VideoID; id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return data, nil
	}

	var vr videosResponse
	if err := c.get(ctx, "/videos", map[string]string{
		"part": "snippet,liveStreamingDetails",
		"id":   strings.Join(ids, ","),
	}, &vr); err != nil {
		return nil, fmt.Errorf("youtube: videos: %w", err)
	}

	for _, item := range vr.Items {
		published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			c.log.WithError(err).WithField("video_id", item.ID).Warn("skipping video with bad publishedAt")
			continue
		}
		v := Video{
			ID:          item.ID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			PublishedAt: published,
			Thumbnail:   item.Snippet.Thumbnails.best(),
			URL:         watchURL(item.ID),
		}
		if item.LiveStreamingDetails != nil {
			v.IsLiveStream = true
			v.LiveStatus = item.LiveStreamingDetails.status()
		}
		data.Videos = append(data.Videos, v)
	}

	return data, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode())
	}
	return nil
}

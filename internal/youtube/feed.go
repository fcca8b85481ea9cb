package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/sirupsen/logrus"
)

const (
	feedFetchTimeout = 30 * time.Second
	feedUserAgent    = "Mozilla/5.0 (compatible; sitefetch/1.0; +https://github.com/ppiankov/sitefetch)"
	feedMaxRetries   = 3
)

// feedBaseURL allows tests to override the channel feed endpoint.
var feedBaseURL = "https://www.youtube.com/feeds/videos.xml"

// feedSleepFunc is used for retry backoff and can be overridden in tests.
var feedSleepFunc = time.Sleep

// FeedLister reads a channel's public Atom feed. It needs no API key but
// the feed carries no live streaming details and only the latest uploads.
type FeedLister struct {
	parser *gofeed.Parser
	log    logrus.FieldLogger
}

// NewFeedLister creates a keyless channel feed reader.
func NewFeedLister(log logrus.FieldLogger) *FeedLister {
	fp := gofeed.NewParser()
	fp.Client = &http.Client{
		Timeout:   feedFetchTimeout,
		Transport: &feedTransport{base: http.DefaultTransport},
	}
	return &FeedLister{parser: fp, log: log}
}

// feedTransport injects a User-Agent header into every request.
type feedTransport struct {
	base http.RoundTripper
}

func (t *feedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", feedUserAgent)
	return t.base.RoundTrip(req)
}

// ChannelVideos implements Source from the channel feed.
func (l *FeedLister) ChannelVideos(ctx context.Context, channelID string, maxResults int) (*ChannelData, error) {
	feedURL := feedBaseURL + "?channel_id=" + url.QueryEscape(channelID)

	feed, err := l.fetchWithRetry(ctx, feedURL)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		return nil, fmt.Errorf("youtube: feed %s: %w", channelID, err)
	}

	data := &ChannelData{
		ChannelTitle: feed.Title,
		ChannelID:    channelID,
		Videos:       []Video{},
	}
	for _, item := range feed.Items {
		if maxResults > 0 && len(data.Videos) >= maxResults {
			break
		}
		v, ok := videoFromItem(item)
		if !ok {
			l.log.WithField("link", item.Link).Debug("skipping feed entry without video id")
			continue
		}
		data.Videos = append(data.Videos, v)
	}
	return data, nil
}

func (l *FeedLister) fetchWithRetry(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	var lastErr error
	for attempt := 0; attempt < feedMaxRetries; attempt++ {
		feed, err := l.parser.ParseURLWithContext(feedURL, ctx)
		if err == nil {
			return feed, nil
		}
		if !isRetryableError(err) {
			return nil, err
		}
		lastErr = err
		if attempt < feedMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			l.log.WithError(err).WithField("attempt", attempt+1).Debug("retrying channel feed")
			feedSleepFunc(backoff)
		}
	}
	return nil, lastErr
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var he gofeed.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500
	}
	s := err.Error()
	return strings.Contains(s, "timeout") || strings.Contains(s, "Timeout") ||
		strings.Contains(s, "connection refused") || strings.Contains(s, "no such host")
}

func isNotFound(err error) bool {
	var he gofeed.HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

func videoFromItem(item *gofeed.Item) (Video, bool) {
	id := extValue(item.Extensions, "yt", "videoId")
	if id == "" {
		return Video{}, false
	}

	v := Video{
		ID:    id,
		Title: item.Title,
		URL:   watchURL(id),
	}
	if item.PublishedParsed != nil {
		v.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		v.PublishedAt = *item.UpdatedParsed
	}

	if group := mediaGroup(item.Extensions); group != nil {
		if d := group.Children["description"]; len(d) > 0 {
			v.Description = d[0].Value
		}
		if th := group.Children["thumbnail"]; len(th) > 0 {
			v.Thumbnail = th[0].Attrs["url"]
		}
	}
	if v.Description == "" {
		v.Description = item.Description
	}
	if v.Thumbnail == "" && item.Image != nil {
		v.Thumbnail = item.Image.URL
	}
	return v, true
}

func extValue(exts ext.Extensions, ns, name string) string {
	if vals := exts[ns][name]; len(vals) > 0 {
		return strings.TrimSpace(vals[0].Value)
	}
	return ""
}

func mediaGroup(exts ext.Extensions) *ext.Extension {
	if groups := exts["media"]["group"]; len(groups) > 0 {
		return &groups[0]
	}
	return nil
}

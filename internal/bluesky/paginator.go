// Package bluesky fetches an author's original posts from a Bluesky PDS and
// normalizes them into PostRecords.
package bluesky

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/sitefetch/internal/embed"
)

const (
	DefaultMaxRequests   = 10
	DefaultPageSizeLimit = 100
	DefaultFilter        = "posts_no_replies"

	// maxPageSize is the largest limit getAuthorFeed accepts.
	maxPageSize = 100
)

// StopReason records why a fetch ended.
type StopReason string

const (
	StopTargetReached    StopReason = "target_reached"
	StopSinglePage       StopReason = "single_page"
	StopMaxRequests      StopReason = "max_requests"
	StopCursorLoop       StopReason = "cursor_loop"
	StopInvalidResponse  StopReason = "invalid_response"
	StopNoCursor         StopReason = "no_cursor"
	StopSourceError      StopReason = "source_error"
	StopNothingRequested StopReason = "nothing_requested"
)

// FeedSource returns one page of an author's feed.
type FeedSource interface {
	ListPosts(ctx context.Context, actor, filter string, limit int, cursor string) (*FeedPage, error)
}

// FetchOptions controls a single Fetch call.
type FetchOptions struct {
	TargetCount      int
	PageSizeLimit    int
	EnablePagination bool
	MaxRequests      int
	Filter           string
	MaxEmbedDepth    int
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.PageSizeLimit <= 0 {
		o.PageSizeLimit = DefaultPageSizeLimit
	}
	if o.MaxRequests <= 0 {
		o.MaxRequests = DefaultMaxRequests
	}
	if o.Filter == "" {
		o.Filter = DefaultFilter
	}
	if o.MaxEmbedDepth <= 0 {
		o.MaxEmbedDepth = embed.DefaultMaxDepth
	}
	return o
}

// Result is the outcome of a Fetch. Posts is sorted newest first and never
// longer than the requested target.
type Result struct {
	Posts    []PostRecord
	Requests int
	Stop     StopReason
}

// Paginator walks an author feed page by page until the target count is
// reached or a guard trips.
type Paginator struct {
	src FeedSource
	log logrus.FieldLogger
}

// NewPaginator creates a Paginator over src.
func NewPaginator(src FeedSource, log logrus.FieldLogger) *Paginator {
	return &Paginator{src: src, log: log}
}

// session is the state of one Fetch call.
type session struct {
	records  []PostRecord
	seen     map[string]struct{}
	requests int
}

// Fetch collects up to opts.TargetCount original posts by actor. Source
// errors are logged and produce an empty result.
func (p *Paginator) Fetch(ctx context.Context, actor string, opts FetchOptions) Result {
	opts = opts.withDefaults()
	log := p.log.WithField("actor", actor)

	if opts.TargetCount <= 0 {
		return Result{Posts: []PostRecord{}, Stop: StopNothingRequested}
	}

	s := &session{seen: make(map[string]struct{})}
	stop, err := p.run(ctx, actor, opts, s, log)
	if err != nil {
		log.WithError(err).WithField("requests", s.requests).Error("fetch posts failed")
		return Result{Posts: []PostRecord{}, Requests: s.requests, Stop: StopSourceError}
	}

	posts := s.records
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if len(posts) > opts.TargetCount {
		posts = posts[:opts.TargetCount]
	}
	if posts == nil {
		posts = []PostRecord{}
	}

	log.WithFields(logrus.Fields{
		"posts":    len(posts),
		"requests": s.requests,
		"stop":     stop,
	}).Debug("fetch complete")

	return Result{Posts: posts, Requests: s.requests, Stop: stop}
}

func (p *Paginator) run(ctx context.Context, actor string, opts FetchOptions, s *session, log logrus.FieldLogger) (StopReason, error) {
	var cursor string
	for {
		if s.requests >= opts.MaxRequests {
			log.WithFields(logrus.Fields{
				"requests": s.requests,
				"posts":    len(s.records),
			}).Warn("request limit reached, returning partial results")
			return StopMaxRequests, nil
		}
		if cursor != "" {
			if _, dup := s.seen[cursor]; dup {
				log.WithField("cursor", cursor).Warn("cursor repeated, stopping")
				return StopCursorLoop, nil
			}
			s.seen[cursor] = struct{}{}
		}

		limit := opts.TargetCount - len(s.records)
		if opts.EnablePagination {
			limit = min(limit, maxPageSize)
		} else {
			limit = min(opts.TargetCount, opts.PageSizeLimit)
		}

		page, err := p.src.ListPosts(ctx, actor, opts.Filter, limit, cursor)
		s.requests++
		if err != nil {
			return "", err
		}
		if page == nil || page.Feed == nil {
			log.WithField("requests", s.requests).Warn("response has no feed, stopping")
			return StopInvalidResponse, nil
		}

		for _, item := range page.Feed {
			if item.IsRepost() {
				continue
			}
			rec, err := NewPostRecord(item, opts.MaxEmbedDepth)
			if err != nil {
				log.WithError(err).Debug("skipping malformed entry")
				continue
			}
			s.records = append(s.records, rec)
		}

		if !opts.EnablePagination {
			return StopSinglePage, nil
		}
		if len(s.records) >= opts.TargetCount {
			return StopTargetReached, nil
		}
		if page.Cursor == "" || page.Cursor == cursor {
			return StopNoCursor, nil
		}
		cursor = page.Cursor
	}
}

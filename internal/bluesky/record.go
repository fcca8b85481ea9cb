package bluesky

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/sitefetch/internal/embed"
)

const postURLFormat = "https://bsky.app/profile/%s/post/%s"

var (
	linkPattern    = regexp.MustCompile(`https?://[^\s]+`)
	mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9._-]+\.bsky\.social|[a-zA-Z0-9._-]+)`)
)

// Author identifies who wrote a post. DisplayName falls back to Handle.
type Author struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

// PostRecord is the normalized form of one original post.
type PostRecord struct {
	URI         string     `json:"uri"`
	CID         string     `json:"cid"`
	Text        string     `json:"text"`
	CreatedAt   time.Time  `json:"created_at"`
	Author      Author     `json:"author"`
	LikeCount   int64      `json:"like_count"`
	RepostCount int64      `json:"repost_count"`
	ReplyCount  int64      `json:"reply_count"`
	URL         string     `json:"url"`
	Links       []string   `json:"links"`
	Mentions    []string   `json:"mentions"`
	Embed       embed.Node `json:"embed,omitempty"`
}

// NewPostRecord builds a PostRecord from a feed entry. It returns an error
// for entries missing the post, author, record or createdAt. A createdAt
// that is not RFC 3339 leaves CreatedAt zero, so the post sorts last.
func NewPostRecord(item FeedItem, maxEmbedDepth int) (PostRecord, error) {
	p := item.Post
	switch {
	case p == nil:
		return PostRecord{}, fmt.Errorf("entry has no post")
	case p.Author == nil || p.Author.Handle == "":
		return PostRecord{}, fmt.Errorf("post %s: missing author", p.URI)
	case p.Record == nil:
		return PostRecord{}, fmt.Errorf("post %s: missing record", p.URI)
	case p.Record.CreatedAt == "":
		return PostRecord{}, fmt.Errorf("post %s: missing createdAt", p.URI)
	}

	createdAt, err := time.Parse(time.RFC3339, p.Record.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}

	displayName := p.Author.DisplayName
	if displayName == "" {
		displayName = p.Author.Handle
	}

	rec := PostRecord{
		URI:       p.URI,
		CID:       p.CID,
		Text:      p.Record.Text,
		CreatedAt: createdAt,
		Author: Author{
			Handle:      p.Author.Handle,
			DisplayName: displayName,
			Avatar:      p.Author.Avatar,
		},
		LikeCount:   count(p.LikeCount),
		RepostCount: count(p.RepostCount),
		ReplyCount:  count(p.ReplyCount),
		URL:         PostURL(p.Author.Handle, p.URI),
		Links:       ExtractLinks(p.Record.Text),
		Mentions:    ExtractMentions(p.Record.Text),
	}

	// Prefer the hydrated view embed over the authored one.
	raw := p.Embed
	if !present(raw) {
		raw = p.Record.Embed
	}
	if present(raw) {
		rec.Embed = embed.Normalize(raw, maxEmbedDepth, 0)
	}

	return rec, nil
}

// PostURL returns the public bsky.app URL for a post, keyed by the last path
// segment of its at:// URI.
func PostURL(handle, uri string) string {
	rkey := uri
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		rkey = uri[i+1:]
	}
	return fmt.Sprintf(postURLFormat, handle, rkey)
}

// ExtractLinks returns every http(s) URL in text, in order of appearance.
func ExtractLinks(text string) []string {
	links := linkPattern.FindAllString(text, -1)
	if links == nil {
		return []string{}
	}
	return links
}

// ExtractMentions returns every @mention in text without the leading @.
func ExtractMentions(text string) []string {
	mentions := []string{}
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		mentions = append(mentions, m[1])
	}
	return mentions
}

func count(n *int64) int64 {
	if n == nil || *n < 0 {
		return 0
	}
	return *n
}

func present(raw json.RawMessage) bool {
	r := bytes.TrimSpace(raw)
	return len(r) > 0 && !bytes.Equal(r, []byte("null"))
}

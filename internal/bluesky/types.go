package bluesky

import (
	"bytes"
	"encoding/json"
)

// FeedPage is one page of app.bsky.feed.getAuthorFeed. A nil Feed means the
// response did not carry a feed array at all.
type FeedPage struct {
	Feed   []FeedItem `json:"feed"`
	Cursor string     `json:"cursor,omitempty"`
}

// FeedItem is a feed entry. Reason is set when the entry is a repost.
type FeedItem struct {
	Post   *PostView       `json:"post"`
	Reason json.RawMessage `json:"reason,omitempty"`
}

// IsRepost reports whether the entry carries a non-null reason.
func (i FeedItem) IsRepost() bool {
	r := bytes.TrimSpace(i.Reason)
	return len(r) > 0 && !bytes.Equal(r, []byte("null"))
}

// PostView is the hydrated post inside a feed entry.
type PostView struct {
	URI         string          `json:"uri"`
	CID         string          `json:"cid"`
	Author      *ProfileView    `json:"author"`
	Record      *PostValue      `json:"record"`
	Embed       json.RawMessage `json:"embed,omitempty"`
	LikeCount   *int64          `json:"likeCount,omitempty"`
	RepostCount *int64          `json:"repostCount,omitempty"`
	ReplyCount  *int64          `json:"replyCount,omitempty"`
}

type ProfileView struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// PostValue is the app.bsky.feed.post record as authored.
type PostValue struct {
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Embed     json.RawMessage `json:"embed,omitempty"`
}

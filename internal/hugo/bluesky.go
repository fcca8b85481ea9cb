package hugo

import (
	"io"
	"time"

	"github.com/ppiankov/sitefetch/internal/bluesky"
)

// BlueskyData is the data/bluesky.json document.
type BlueskyData struct {
	LastUpdated time.Time            `json:"last_updated"`
	PostCount   int                  `json:"post_count"`
	Posts       []bluesky.PostRecord `json:"posts"`
}

// EncodeBluesky writes posts as a BlueskyData document.
func EncodeBluesky(w io.Writer, posts []bluesky.PostRecord, now time.Time) error {
	return encodeJSON(w, BlueskyData{
		LastUpdated: now.UTC(),
		PostCount:   len(posts),
		Posts:       posts,
	})
}

// WriteBluesky replaces the file at path with posts. It returns ErrNoContent
// without touching the file when posts is empty.
func WriteBluesky(path string, posts []bluesky.PostRecord, now time.Time) error {
	if len(posts) == 0 {
		return ErrNoContent
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		return EncodeBluesky(w, posts, now)
	})
}

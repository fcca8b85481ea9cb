package embed

import (
	"bytes"
	"encoding/json"
)

const (
	// DefaultMaxDepth bounds how many quoted posts deep normalization descends.
	DefaultMaxDepth = 3

	// MaxNestedEmbeds caps the children normalized under one quoted post.
	MaxNestedEmbeds = 3

	reasonMissing = "missing embed object"
)

// Wire shapes of app.bsky.embed.* payloads, both #view and authored. Only the
// fields used for shape detection and output are declared.

type rawEmbed struct {
	Type     string          `json:"$type"`
	External *rawExternal    `json:"external"`
	Images   []*rawImage     `json:"images"`
	Record   json.RawMessage `json:"record"`
}

type rawExternal struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       looseString `json:"thumb"`
}

type rawImage struct {
	Alt      string      `json:"alt"`
	Thumb    looseString `json:"thumb"`
	Fullsize looseString `json:"fullsize"`
}

// looseString keeps a JSON string and decodes anything else as empty.
// Authored records carry blob objects where views carry URLs.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		v = ""
	}
	*s = looseString(v)
	return nil
}

type rawRecord struct {
	URI    string `json:"uri"`
	Author *struct {
		Handle string `json:"handle"`
	} `json:"author"`
	Value *struct {
		Text string `json:"text"`
	} `json:"value"`
	Embeds []json.RawMessage `json:"embeds"`

	// Set on recordWithMedia views, where the quoted record sits one level down.
	Record json.RawMessage `json:"record"`
}

// Normalize converts raw into a Node. It never fails: absent, unknown and
// malformed payloads come back as Invalid, UnknownType and ProcessingError.
//
// The depth check runs before anything else, so a call at depth >= maxDepth
// always yields DepthLimitExceeded.
func Normalize(raw json.RawMessage, maxDepth, depth int) Node {
	if depth >= maxDepth {
		return DepthLimitExceeded{Depth: maxDepth}
	}
	if isAbsent(raw) {
		return Invalid{Reason: reasonMissing}
	}

	var e rawEmbed
	if err := json.Unmarshal(raw, &e); err != nil {
		return ProcessingError{Message: err.Error(), OriginalType: peekType(raw)}
	}
	if e.Type == "" {
		return Invalid{Reason: reasonMissing}
	}

	// Order matters: a payload can satisfy more than one shape.
	switch {
	case e.External != nil:
		return ExternalLink{
			URI:         e.External.URI,
			Title:       e.External.Title,
			Description: e.External.Description,
			Thumbnail:   string(e.External.Thumb),
		}
	case len(e.Images) > 0:
		return imageSet(e.Images)
	case !isAbsent(e.Record):
		return quotedPost(e, maxDepth, depth)
	}

	return UnknownType{TypeName: e.Type}
}

func imageSet(in []*rawImage) ImageSet {
	images := make([]Image, 0, len(in))
	for _, img := range in {
		if img == nil {
			continue
		}
		images = append(images, Image{
			Alt:       img.Alt,
			Thumbnail: string(img.Thumb),
			Fullsize:  string(img.Fullsize),
		})
	}
	return ImageSet{Images: images}
}

func quotedPost(e rawEmbed, maxDepth, depth int) Node {
	var rec rawRecord
	if err := json.Unmarshal(e.Record, &rec); err != nil {
		return ProcessingError{Message: err.Error(), OriginalType: e.Type}
	}
	if rec.URI == "" && !isAbsent(rec.Record) {
		var inner rawRecord
		if err := json.Unmarshal(rec.Record, &inner); err != nil {
			return ProcessingError{Message: err.Error(), OriginalType: e.Type}
		}
		rec = inner
	}

	q := QuotedPost{URI: rec.URI}
	if rec.Author != nil {
		q.Author = rec.Author.Handle
	}
	if rec.Value != nil {
		q.Text = rec.Value.Text
	}

	if len(rec.Embeds) > 0 && depth < maxDepth {
		nested := rec.Embeds
		if len(nested) > MaxNestedEmbeds {
			nested = nested[:MaxNestedEmbeds]
		}
		q.Embeds = make([]Node, 0, len(nested))
		for _, child := range nested {
			q.Embeds = append(q.Embeds, Normalize(child, maxDepth, depth+1))
		}
	}

	return q
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// peekType recovers the $type tag from a payload that failed full decoding.
func peekType(raw json.RawMessage) string {
	var probe struct {
		Type any `json:"$type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	s, _ := probe.Type.(string)
	return s
}

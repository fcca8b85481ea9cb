// Package embed converts raw Bluesky embed payloads into a depth-bounded tree
// of tagged nodes.
package embed

import "encoding/json"

// Kind tags the active variant of a Node.
type Kind string

const (
	KindExternal   Kind = "external"
	KindImages     Kind = "images"
	KindQuote      Kind = "quote"
	KindDepthLimit Kind = "depth_limit_exceeded"
	KindUnknown    Kind = "unknown"
	KindInvalid    Kind = "invalid"
	KindError      Kind = "error"
)

// Node is one normalized embed. Exactly one concrete type below implements it.
type Node interface {
	Kind() Kind
	node()
}

// ExternalLink is a link preview card.
type ExternalLink struct {
	URI         string `json:"uri,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumb,omitempty"`
}

// Image is a single entry of an ImageSet.
type Image struct {
	Alt       string `json:"alt"`
	Thumbnail string `json:"thumb,omitempty"`
	Fullsize  string `json:"fullsize,omitempty"`
}

// ImageSet is an ordered list of attached images.
type ImageSet struct {
	Images []Image `json:"images"`
}

// QuotedPost is another post embedded in this one. Embeds holds at most
// MaxNestedEmbeds children, each normalized one level deeper.
type QuotedPost struct {
	URI    string `json:"uri,omitempty"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text,omitempty"`
	Embeds []Node `json:"embeds,omitempty"`
}

// DepthLimitExceeded marks where normalization stopped descending.
type DepthLimitExceeded struct {
	Depth int `json:"depth"`
}

// UnknownType is a well-formed payload whose shape is not recognized.
type UnknownType struct {
	TypeName string `json:"type_name"`
}

// Invalid is a payload that is absent or has no type discriminator.
type Invalid struct {
	Reason string `json:"reason"`
}

// ProcessingError is a payload that failed to decode structurally.
type ProcessingError struct {
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}

func (ExternalLink) Kind() Kind       { return KindExternal }
func (ImageSet) Kind() Kind           { return KindImages }
func (QuotedPost) Kind() Kind         { return KindQuote }
func (DepthLimitExceeded) Kind() Kind { return KindDepthLimit }
func (UnknownType) Kind() Kind        { return KindUnknown }
func (Invalid) Kind() Kind            { return KindInvalid }
func (ProcessingError) Kind() Kind    { return KindError }

func (ExternalLink) node()       {}
func (ImageSet) node()           {}
func (QuotedPost) node()         {}
func (DepthLimitExceeded) node() {}
func (UnknownType) node()        {}
func (Invalid) node()            {}
func (ProcessingError) node()    {}

// Every node serializes as {"type": <kind>, "data": {...}}.

type tagged struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

func (n ExternalLink) MarshalJSON() ([]byte, error) {
	type fields ExternalLink
	return json.Marshal(tagged{Type: n.Kind(), Data: fields(n)})
}

func (n ImageSet) MarshalJSON() ([]byte, error) {
	type fields ImageSet
	if n.Images == nil {
		n.Images = []Image{}
	}
	return json.Marshal(tagged{Type: n.Kind(), Data: fields(n)})
}

func (n QuotedPost) MarshalJSON() ([]byte, error) {
	type fields QuotedPost
	return json.Marshal(tagged{Type: n.Kind(), Data: fields(n)})
}

func (n DepthLimitExceeded) MarshalJSON() ([]byte, error) {
	type fields DepthLimitExceeded
	return json.Marshal(tagged{Type: n.Kind(), Data: fields(n)})
}

func (n UnknownType) MarshalJSON() ([]byte, error) {
	type fields UnknownType
	return json.Marshal(tagged{Type: n.Kind(), Data: fields(n)})
}

func (n Invalid) MarshalJSON() ([]byte, error) {
	type fields Invalid
	return json.Marshal(tagged{Type: n.Kind(), Data: fields(n)})
}

func (n ProcessingError) MarshalJSON() ([]byte, error) {
	type fields ProcessingError
	return json.Marshal(tagged{Type: n.Kind(), Data: fields(n)})
}

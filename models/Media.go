package models

// MediaRef points at the source of an image attachment. Width and Height are
// the sizes reported by the source, or zero when it reported none.
type MediaRef struct {
	URL    string `json:"url" yaml:"url"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height int    `json:"height,omitempty" yaml:"height,omitempty"`
}

// PendingMedia is one queued unit of ingest work.
type PendingMedia struct {
	Post  Post
	Media MediaRef
}

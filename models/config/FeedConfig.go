package config

import "time"

// FeedConfig describes an HTML page listing posts. Every field parser is
// evaluated inside one element matched by PostSelector.
type FeedConfig struct {
	ID             string            `json:"id" yaml:"id"`
	URL            string            `json:"url" yaml:"url"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	Interval       time.Duration     `json:"interval" yaml:"interval"`
	ConnectTimeout int               `json:"connectTimeout" yaml:"connectTimeout"` // in seconds
	PostSelector   string            `json:"postSelector" yaml:"postSelector"`
	AuthorID       HTMLParserConfig  `json:"authorId" yaml:"authorId"`
	PostID         HTMLParserConfig  `json:"postId" yaml:"postId"`
	AuthorName     HTMLParserConfig  `json:"authorName" yaml:"authorName"`
	Text           HTMLParserConfig  `json:"text" yaml:"text"`
	Media          HTMLParserConfig  `json:"media" yaml:"media"`
}

func (f *FeedConfig) applyDefaults() {
	if f.Interval <= 0 {
		f.Interval = time.Minute
	}
}

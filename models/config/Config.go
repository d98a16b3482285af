package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	DefaultMismatchThreshold = 25.0
	DefaultEarlyExitSlack    = 5.0
	DefaultCompareMaxSide    = 256
	DefaultPersistInterval   = 10 * time.Second
	DefaultCheckInterval     = 30 * time.Minute
	DefaultWarnQueueLength   = 1000
)

type FeedList map[string]*FeedConfig
type Config struct {
	Feeds       FeedList          `json:"feeds" yaml:"feeds"`
	Logger      LoggerConfig      `json:"logger" yaml:"logger"`
	ImageDir    string            `json:"imageDir" yaml:"imageDir"`
	DataDir     string            `json:"dataDir" yaml:"dataDir"`
	WorkDir     string            `json:"workDir" yaml:"workDir"`
	Plugins     []string          `json:"plugins" yaml:"plugins"`
	Comparator  ComparatorConfig  `json:"comparator" yaml:"comparator"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Fetcher     FetcherConfig     `json:"fetcher" yaml:"fetcher"`
	Transcoder  TranscoderConfig  `json:"transcoder" yaml:"transcoder"`
	Checker     CheckerConfig     `json:"checker" yaml:"checker"`
	APIConfig   APIConfig         `json:"api" yaml:"api"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
}

// assign names every feed after its key. A key without a body is an error.
func (a *FeedList) assign(s map[string]*FeedConfig) error {
	for id, feed := range s {
		if feed == nil {
			return fmt.Errorf("feed %s: empty config", id)
		}
		feed.ID = id
	}
	*a = s
	return nil
}

func (a *FeedList) UnmarshalJSON(data []byte) error {
	var s map[string]*FeedConfig
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return a.assign(s)
}

func (a *FeedList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s map[string]*FeedConfig
	if err := unmarshal(&s); err != nil {
		return err
	}
	return a.assign(s)
}

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(c.WorkDir, "data")
	}
	if c.ImageDir == "" {
		c.ImageDir = filepath.Join(c.DataDir, "images")
	}
	c.Comparator.applyDefaults()
	c.Ingest.applyDefaults()
	c.Persistence.applyDefaults()
	c.Fetcher.applyDefaults()
	c.Transcoder.applyDefaults()
	c.Checker.applyDefaults()
	c.APIConfig.applyDefaults()
	for _, feed := range c.Feeds {
		if feed != nil {
			feed.applyDefaults()
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Plugins) == 0 {
		return errors.New("no plugins configured")
	}
	if err := c.Comparator.Validate(); err != nil {
		return fmt.Errorf("comparator: %w", err)
	}
	for id, feed := range c.Feeds {
		if feed == nil {
			return fmt.Errorf("feed %s: empty config", id)
		}
		if feed.URL == "" {
			return fmt.Errorf("feed %s: url is required", id)
		}
		if feed.PostSelector == "" {
			return fmt.Errorf("feed %s: postSelector is required", id)
		}
	}
	return nil
}

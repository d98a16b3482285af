package config

import (
	"errors"
	"time"
)

type CompareMethod string

const (
	CompareMethodPixel CompareMethod = "pixel"
	CompareMethodPHash CompareMethod = "phash"
)

type ComparatorConfig struct {
	Method         CompareMethod `json:"method" yaml:"method"`
	Threshold      float64       `json:"threshold" yaml:"threshold"`           // mismatch percent
	EarlyExitSlack float64       `json:"earlyExitSlack" yaml:"earlyExitSlack"` // added to threshold
	MaxSide        int           `json:"maxSide" yaml:"maxSide"`               // in pixels
	Tolerance      uint8         `json:"tolerance" yaml:"tolerance"`           // brightness delta
	Workers        int           `json:"workers" yaml:"workers"`
}

func (c *ComparatorConfig) applyDefaults() {
	if c.Method == "" {
		c.Method = CompareMethodPixel
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultMismatchThreshold
	}
	if c.EarlyExitSlack == 0 {
		c.EarlyExitSlack = DefaultEarlyExitSlack
	}
	if c.MaxSide == 0 {
		c.MaxSide = DefaultCompareMaxSide
	}
	if c.Tolerance == 0 {
		c.Tolerance = 16
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
}

func (c *ComparatorConfig) Validate() error {
	switch c.Method {
	case CompareMethodPixel, CompareMethodPHash:
	default:
		return errors.New("unknown compare method: " + string(c.Method))
	}
	if c.Threshold <= 0 || c.Threshold > 100 {
		return errors.New("threshold must be in (0, 100]")
	}
	return nil
}

type IngestConfig struct {
	WarnQueueLength int `json:"warnQueueLength" yaml:"warnQueueLength"`
}

func (c *IngestConfig) applyDefaults() {
	if c.WarnQueueLength <= 0 {
		c.WarnQueueLength = DefaultWarnQueueLength
	}
}

type PersistenceConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

func (c *PersistenceConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultPersistInterval
	}
}

type FetcherConfig struct {
	Headers            map[string]string `json:"headers" yaml:"headers"`
	ErrorRetryInterval uint              `json:"errorRetryInterval" yaml:"errorRetryInterval"` // in seconds
	ErrorRetryMaxCount uint              `json:"errorRetryMaxCount" yaml:"errorRetryMaxCount"`
	ConnectTimeout     int               `json:"connectTimeout" yaml:"connectTimeout"` // in seconds, 0 keeps the transport default
	RequestsPerSecond  float64           `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	// LocalRoot is the only directory file:// media may be copied from.
	// Empty disables file:// fetching.
	LocalRoot          string            `json:"localRoot" yaml:"localRoot"`
}

func (c *FetcherConfig) applyDefaults() {
	if c.ErrorRetryMaxCount == 0 {
		c.ErrorRetryMaxCount = 1
	}
}

type TranscoderConfig struct {
	Command    string   `json:"command" yaml:"command"`
	Extensions []string `json:"extensions" yaml:"extensions"`
}

func (c *TranscoderConfig) applyDefaults() {
	if c.Command == "" {
		c.Command = "magick"
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".heic", ".heif", ".avif"}
	}
}

type CheckerConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

func (c *CheckerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultCheckInterval
	}
}

type APIConfig struct {
	Port int `json:"port" yaml:"port"`
}

func (c *APIConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
}

type DatabaseConfig struct {
	Connection string `json:"connection" yaml:"connection"`
}

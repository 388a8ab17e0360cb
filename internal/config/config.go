package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Create new config instance
func NewConfig() *Config {
	return &Config{}
}

// Read loads a YAML configuration file, overlays environment variables and
// fills defaults, then validates the result.
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := c.Parse(data); err != nil {
		return fmt.Errorf("config %s: %w", file, err)
	}
	return nil
}

// Parse is Read without the filesystem.
func (c *Config) Parse(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	if err := cleanenv.ReadEnv(c); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	c.applyDefaults()
	return c.Validate()
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

var defaultQueues = QueuesConfig{
	Image:  QueueConfig{Stream: "media:image", Group: "image-workers", Workers: 4, VisibilityTimeout: 90 * time.Second},
	Office: QueueConfig{Stream: "media:office", Group: "office-workers", Workers: 2, VisibilityTimeout: 2 * time.Minute},
	Markup: QueueConfig{Stream: "media:markup", Group: "markup-workers", Workers: 2, VisibilityTimeout: time.Minute},
	Sharp:  QueueConfig{Stream: "media:sharp", Group: "sharp-workers", Workers: 2, VisibilityTimeout: 90 * time.Second},
}

// DefaultThumbs are the two JPEG renditions of a raster source.
var DefaultThumbs = []ThumbConfig{
	{Name: "thumb_md.jpeg", Height: 500, Quality: 90},
	{Name: "thumb_sm.jpeg", Height: 150, Quality: 80},
}

func (c *Config) applyDefaults() {
	fillQueue(&c.Queues.Image, defaultQueues.Image)
	fillQueue(&c.Queues.Office, defaultQueues.Office)
	fillQueue(&c.Queues.Markup, defaultQueues.Markup)
	fillQueue(&c.Queues.Sharp, defaultQueues.Sharp)
	if len(c.Image.Thumbs) == 0 {
		c.Image.Thumbs = append([]ThumbConfig(nil), DefaultThumbs...)
	}
	if c.Converter.ScratchDir == "" {
		c.Converter.ScratchDir = os.TempDir()
	}
	if c.Video.Region == "" {
		c.Video.Region = c.Storage.Region
	}
}

func fillQueue(q *QueueConfig, def QueueConfig) {
	if q.Stream == "" {
		q.Stream = def.Stream
	}
	if q.Group == "" {
		q.Group = def.Group
	}
	if q.VisibilityTimeout == 0 {
		q.VisibilityTimeout = def.VisibilityTimeout
	}
	if q.Workers == 0 {
		q.Workers = def.Workers
	}
	if q.Consumer == "" {
		host, _ := os.Hostname()
		q.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
database:
  dsn: postgres://localhost/media
redis:
  nodes:
    - host: localhost
      port: 6379
storage:
  bucket_name: file-nodes
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Parse([]byte(minimal)); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Retry.MaxReceiveCount != 3 {
		t.Fatalf("expected max receive count 3, got %d", cfg.Retry.MaxReceiveCount)
	}
	if cfg.Queues.Image.VisibilityTimeout != 90*time.Second {
		t.Fatalf("unexpected image visibility timeout %s", cfg.Queues.Image.VisibilityTimeout)
	}
	if cfg.Queues.Office.Stream != "media:office" || cfg.Queues.Markup.Group != "markup-workers" {
		t.Fatalf("queue defaults not applied: %+v", cfg.Queues)
	}
	if cfg.Queues.Sharp.Stream != "media:sharp" || cfg.Queues.Sharp.VisibilityTimeout != 90*time.Second {
		t.Fatalf("sharp queue defaults not applied: %+v", cfg.Queues.Sharp)
	}
	if cfg.Image.MaxPixels != 900_000_000 {
		t.Fatalf("unexpected max pixels %d", cfg.Image.MaxPixels)
	}
	if len(cfg.Image.Thumbs) != 2 || cfg.Image.Thumbs[0].Height != 500 || cfg.Image.Thumbs[1].Quality != 80 {
		t.Fatalf("unexpected thumbs %+v", cfg.Image.Thumbs)
	}
	if cfg.DeadLetter.Retention != 14*24*time.Hour {
		t.Fatalf("unexpected retention %s", cfg.DeadLetter.Retention)
	}
	if cfg.Events.Backend != BackendNATS {
		t.Fatalf("unexpected backend %s", cfg.Events.Backend)
	}
	if cfg.Converter.ScratchDir == "" || cfg.Queues.Image.Consumer == "" {
		t.Fatalf("expected scratch dir and consumer name to be filled")
	}
}

func TestParseDurationsAndEnvOverride(t *testing.T) {
	t.Setenv("MAX_RECEIVE_COUNT", "5")
	t.Setenv("QUEUE_MARKUP_VISIBILITY_TIMEOUT", "45s")
	cfg := NewConfig()
	data := minimal + `
queues:
  image:
    stream: custom:image
    group: g
    visibility_timeout: 2m
`
	if err := cfg.Parse([]byte(data)); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Retry.MaxReceiveCount != 5 {
		t.Fatalf("env override ignored: %d", cfg.Retry.MaxReceiveCount)
	}
	if cfg.Queues.Image.Stream != "custom:image" || cfg.Queues.Image.VisibilityTimeout != 2*time.Minute {
		t.Fatalf("unexpected image queue %+v", cfg.Queues.Image)
	}
	if cfg.Queues.Markup.VisibilityTimeout != 45*time.Second {
		t.Fatalf("unexpected markup timeout %s", cfg.Queues.Markup.VisibilityTimeout)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"short retention": minimal + "dead_letter:\n  retention: 24h\n",
		"bad backend":     minimal + "events:\n  backend: sqs\n",
		"kafka w/o topic": minimal + "events:\n  backend: kafka\n  kafka_brokers: localhost:9092\n",
		"unknown field":   minimal + "bogus: 1\n",
		"video w/o role":  minimal + "video:\n  enabled: true\n",
	}
	for name, data := range cases {
		if err := NewConfig().Parse([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	noDSN := strings.Replace(minimal, "dsn: postgres://localhost/media", "dsn: \"\"", 1)
	if err := NewConfig().Parse([]byte(noDSN)); err == nil {
		t.Fatalf("expected missing dsn to fail")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := NewConfig()
	if err := cfg.Read(path); err != nil {
		t.Fatalf("read: %v", err)
	}
	if cfg.Storage.BucketName != "file-nodes" {
		t.Fatalf("unexpected bucket %s", cfg.Storage.BucketName)
	}
	if err := NewConfig().Read(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if (RedisNode{Host: "h", Port: 1}).Addr() != "h:1" {
		t.Fatalf("unexpected addr")
	}
}

func TestExampleConfigParses(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Read(filepath.Join("..", "..", "config.example.yaml")); err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.Queues.Office.VisibilityTimeout != 2*time.Minute {
		t.Fatalf("unexpected office timeout %s", cfg.Queues.Office.VisibilityTimeout)
	}
	if cfg.Video.Enabled {
		t.Fatalf("video should be disabled in the example")
	}
}

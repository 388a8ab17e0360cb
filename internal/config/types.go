package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   Database         `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Events     EventsConfig     `yaml:"events"`
	Queues     QueuesConfig     `yaml:"queues"`
	Retry      RetryConfig      `yaml:"retry"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Image      ImageConfig      `yaml:"image"`
	Converter  ConverterConfig  `yaml:"converter"`
	Video      VideoConfig      `yaml:"video"`
	Sentry     SentryConfig     `yaml:"sentry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" env:"SERVER_PORT" env-default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	// MaxRequestBodyKB bounds job and lifecycle-event request bodies.
	MaxRequestBodyKB int64 `yaml:"max_request_body_kb" env:"SERVER_MAX_REQUEST_BODY_KB" env-default:"256"`
}

type Database struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN" validate:"required"`
}

type RedisConfig struct {
	Password            string        `yaml:"password" env:"REDIS_PASSWORD"`
	DatabaseID          int           `yaml:"database_id" env:"REDIS_DB"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"REDIS_HEALTH_CHECK_INTERVAL" env-default:"30s"`
	DialTimeout         time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout         time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout        time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
	PoolSize            int           `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"20"`
	Nodes               []RedisNode   `yaml:"nodes" validate:"required,min=1,dive"`
}

type RedisNode struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"gt=0"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

// StorageConfig addresses the bucket holding sources and derived artifacts.
// AccountID selects the Cloudflare R2 endpoint; Endpoint any other
// S3-compatible one; neither means AWS S3.
type StorageConfig struct {
	BucketName  string `yaml:"bucket_name" env:"STORAGE_BUCKET" validate:"required"`
	Region      string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	AccountID   string `yaml:"account_id" env:"R2_ACCOUNT_ID"`
	Endpoint    string `yaml:"endpoint" env:"STORAGE_ENDPOINT"`
	AccessKeyID string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretKey   string `yaml:"secret_key" env:"AWS_SECRET_ACCESS_KEY"`
	MaxRetries  int    `yaml:"max_retries" env:"STORAGE_MAX_RETRIES" env-default:"3"`
}

const (
	BackendNATS        = "nats"
	BackendEventBridge = "eventbridge"
	BackendKafka       = "kafka"
)

type EventsConfig struct {
	Backend       string `yaml:"backend" env:"EVENTS_BACKEND" env-default:"nats" validate:"oneof=nats eventbridge kafka"`
	NATSURL       string `yaml:"nats_url" env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
	SubjectPrefix string `yaml:"subject_prefix" env:"EVENTS_SUBJECT_PREFIX" env-default:"events"`
	EventBusName  string `yaml:"event_bus_name" env:"EVENT_BUS_NAME" validate:"required_if=Backend eventbridge"`
	KafkaBrokers  string `yaml:"kafka_brokers" env:"KAFKA_BROKERS" validate:"required_if=Backend kafka"`
	KafkaTopic    string `yaml:"kafka_topic" env:"KAFKA_TOPIC" validate:"required_if=Backend kafka"`
}

type QueuesConfig struct {
	Image  QueueConfig `yaml:"image" env-prefix:"QUEUE_IMAGE_"`
	Office QueueConfig `yaml:"office" env-prefix:"QUEUE_OFFICE_"`
	Markup QueueConfig `yaml:"markup" env-prefix:"QUEUE_MARKUP_"`
	Sharp  QueueConfig `yaml:"sharp" env-prefix:"QUEUE_SHARP_"`
}

type QueueConfig struct {
	Stream   string `yaml:"stream" env:"STREAM" validate:"required"` // redis stream name
	Group    string `yaml:"group" env:"GROUP" validate:"required"`   // consumer group name
	Consumer string `yaml:"consumer" env:"CONSUMER"`
	Workers  int    `yaml:"workers" env:"WORKERS" validate:"gte=-1"` // concurrent deliveries; -1 disables the family
	MaxLen   int64  `yaml:"max_len" env:"MAX_LEN"`                  // stream max length before trim
	// VisibilityTimeout is how long a delivered message stays invisible
	// before it may be reclaimed by another consumer. Keep it above the
	// adapter's worst-case latency.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" env:"VISIBILITY_TIMEOUT" validate:"gt=0"`
	BlockTimeout      time.Duration `yaml:"block_timeout" env:"BLOCK_TIMEOUT" env-default:"5s"` // XREADGROUP block timeout
}

type RetryConfig struct {
	MaxReceiveCount int `yaml:"max_receive_count" env:"MAX_RECEIVE_COUNT" env-default:"3" validate:"gte=1"`
}

type DeadLetterConfig struct {
	Retention     time.Duration `yaml:"retention" env:"DEAD_LETTER_RETENTION" env-default:"336h" validate:"gte=336h"`
	PurgeInterval time.Duration `yaml:"purge_interval" env:"DEAD_LETTER_PURGE_INTERVAL" env-default:"24h" validate:"gt=0"`
}

type ImageConfig struct {
	MaxPixels int64         `yaml:"max_pixels" env:"IMAGE_MAX_PIXELS" env-default:"900000000" validate:"gt=0"`
	Thumbs    []ThumbConfig `yaml:"thumbs" validate:"dive"`
}

type ThumbConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Height  int    `yaml:"height" validate:"gt=0"`
	Quality int    `yaml:"quality" validate:"gt=0,lte=100"`
}

type ConverterConfig struct {
	ScratchDir      string        `yaml:"scratch_dir" env:"SCRATCH_DIR"`
	LibreOfficePath string        `yaml:"libreoffice_path" env:"LIBREOFFICE_PATH" env-default:"libreoffice"`
	PandocPath      string        `yaml:"pandoc_path" env:"PANDOC_PATH" env-default:"pandoc"`
	Timeout         time.Duration `yaml:"timeout" env:"CONVERTER_TIMEOUT" env-default:"90s"`
}

type VideoConfig struct {
	Enabled     bool   `yaml:"enabled" env:"VIDEO_ENABLED"`
	Region      string `yaml:"region" env:"VIDEO_REGION"`
	Endpoint    string `yaml:"endpoint" env:"MEDIACONVERT_ENDPOINT"`
	RoleARN     string `yaml:"role_arn" env:"MEDIACONVERT_ROLE_ARN" validate:"required_if=Enabled true"`
	Queue       string `yaml:"queue" env:"MEDIACONVERT_QUEUE"`
	JobTemplate string `yaml:"job_template" env:"MEDIACONVERT_JOB_TEMPLATE"`
	// DedupeTTL is how long a forwarded lifecycle event id is remembered.
	DedupeTTL time.Duration `yaml:"dedupe_ttl" env:"VIDEO_DEDUPE_TTL" env-default:"1h"`
}

type SentryConfig struct {
	SentryDSN   string `yaml:"sentry_dsn" env:"SENTRY_DSN"`
	Environment string `yaml:"environment" env:"SENTRY_ENVIRONMENT" env-default:"development"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE" env-default:"hotspace_media"`
}

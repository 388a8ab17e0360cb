package blob

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	conf "github.com/martpet/hotspace-aws/internal/config"
)

// PutOptions carries the HTTP metadata stored with an object.
type PutOptions struct {
	ContentType        string
	CacheControl       string
	ContentDisposition string
}

type getObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 reads sources and writes derived artifacts in one bucket.
type S3 struct {
	Bucket         string
	MaxRetries     int
	RetryBaseDelay time.Duration

	client   getObjectAPI
	uploader uploader
}

// AWSConfig builds the SDK configuration shared by the S3, EventBridge and
// MediaConvert clients.
func AWSConfig(ctx context.Context, cfg *conf.StorageConfig, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func NewStorage(ctx context.Context, cfg *conf.StorageConfig) (*S3, error) {
	region := cfg.Region
	if cfg.AccountID != "" {
		region = "auto" // R2
	}
	awsCfg, err := AWSConfig(ctx, cfg, region)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		switch {
		case cfg.AccountID != "":
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
			o.UsePathStyle = true
		case cfg.Endpoint != "":
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Printf("[blob] client initialized bucket=%s", cfg.BucketName)
	return newS3(cfg.BucketName, cfg.MaxRetries, client, manager.NewUploader(client)), nil
}

func newS3(bucket string, maxRetries int, client getObjectAPI, up uploader) *S3 {
	return &S3{
		Bucket:         bucket,
		MaxRetries:     maxRetries,
		RetryBaseDelay: 300 * time.Millisecond,
		client:         client,
		uploader:       up,
	}
}

// Get downloads the whole object.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("failed to read body for %q: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Put writes an object, retrying transient failures with backoff. Writes
// overwrite, so a retried Put is safe.
func (s *S3) Put(ctx context.Context, key string, body []byte, opts PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(opts.ContentType),
	}
	if opts.CacheControl != "" {
		in.CacheControl = aws.String(opts.CacheControl)
	}
	if opts.ContentDisposition != "" {
		in.ContentDisposition = aws.String(opts.ContentDisposition)
	}

	var err error
	for attempt := 1; ; attempt++ {
		in.Body = bytes.NewReader(body)
		if _, err = s.uploader.Upload(ctx, in); err == nil {
			return nil
		}
		if attempt > s.MaxRetries {
			break
		}

		timer := time.NewTimer(s.backoffDelay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("failed to upload %q: %w", key, ctx.Err())
		}
	}
	return fmt.Errorf("failed to upload %q: %w", key, err)
}

// backoffDelay doubles per attempt with ±5% jitter.
func (s *S3) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := time.Duration(int64(delay) / 10)
	if jitter <= 0 {
		return delay
	}
	return delay - jitter/2 + time.Duration(rand.Int64N(int64(jitter)))
}

package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"

	"github.com/martpet/hotspace-aws/internal/config"
	"github.com/martpet/hotspace-aws/internal/events"
	"github.com/martpet/hotspace-aws/internal/naming"
)

// MediaConvertAPI is the slice of the MediaConvert client the service uses.
type MediaConvertAPI interface {
	CreateJob(ctx context.Context, in *mediaconvert.CreateJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error)
	CancelJob(ctx context.Context, in *mediaconvert.CancelJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CancelJobOutput, error)
}

var (
	ErrJobNotFound = errors.New("transcoding job not found")
	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("transcoding job can no longer be cancelled")
)

// Deduper remembers lifecycle event ids.
type Deduper interface {
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Remove(ctx context.Context, key string) error
}

// Default renditions when no job template is configured.
var hlsPresets = []struct{ modifier, preset string }{
	{"_1080p", "System-Ott_Hls_Ts_Avc_Aac_16x9_1920x1080p_30Hz_8.5Mbps"},
	{"_720p", "System-Ott_Hls_Ts_Avc_Aac_16x9_1280x720p_30Hz_5.0Mbps"},
	{"_360p", "System-Ott_Hls_Ts_Avc_Aac_16x9_640x360p_30Hz_1.2Mbps"},
}

// SubmitRequest asks for an HLS rendition of a stored video.
type SubmitRequest struct {
	InodeID         string          `json:"inodeId" validate:"required"`
	ObjectKey       string          `json:"objectKey" validate:"required"`
	CallbackContext json.RawMessage `json:"callbackContext,omitempty"`
}

// Service hands transcoding to MediaConvert and relays its lifecycle
// events. Retries belong to MediaConvert; the service has none.
type Service struct {
	client  MediaConvertAPI
	cfg     config.VideoConfig
	bucket  string
	emitter *events.Emitter
	dedupe  Deduper
}

func NewService(client MediaConvertAPI, cfg config.VideoConfig, bucket string, emitter *events.Emitter, dedupe Deduper) *Service {
	return &Service{client: client, cfg: cfg, bucket: bucket, emitter: emitter, dedupe: dedupe}
}

// NewMediaConvertClient builds a client for the account's MediaConvert
// endpoint, when one is configured.
func NewMediaConvertClient(awsCfg aws.Config, cfg config.VideoConfig) *mediaconvert.Client {
	return mediaconvert.NewFromConfig(awsCfg, func(o *mediaconvert.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

// Submit creates the transcoding job and returns its id.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.InodeID == "" || req.ObjectKey == "" {
		return "", errors.New("inodeId and objectKey are required")
	}

	meta := map[string]string{
		"inodeId":   req.InodeID,
		"objectKey": req.ObjectKey,
	}
	if len(req.CallbackContext) > 0 {
		meta["callbackContext"] = string(req.CallbackContext)
	}

	in := &mediaconvert.CreateJobInput{
		Role:         aws.String(s.cfg.RoleARN),
		Settings:     s.settings(req.ObjectKey),
		UserMetadata: meta,
	}
	if s.cfg.Queue != "" {
		in.Queue = aws.String(s.cfg.Queue)
	}
	if s.cfg.JobTemplate != "" {
		in.JobTemplate = aws.String(s.cfg.JobTemplate)
	}

	out, err := s.client.CreateJob(ctx, in)
	if err != nil {
		return "", fmt.Errorf("create mediaconvert job: %w", err)
	}
	var id string
	if out.Job != nil {
		id = aws.ToString(out.Job.Id)
	}
	log.Printf("[video] inode=%s job=%s submitted", req.InodeID, id)
	return id, nil
}

// Cancel stops a submitted or progressing job.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	_, err := s.client.CancelJob(ctx, &mediaconvert.CancelJobInput{Id: aws.String(jobID)})
	if err != nil {
		var (
			notFound *types.NotFoundException
			conflict *types.ConflictException
		)
		switch {
		case errors.As(err, &notFound):
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		case errors.As(err, &conflict):
			return fmt.Errorf("%w: %s", ErrJobFinished, jobID)
		}
		return fmt.Errorf("cancel mediaconvert job %s: %w", jobID, err)
	}
	log.Printf("[video] job=%s cancel requested", jobID)
	return nil
}

func (s *Service) settings(objectKey string) *types.JobSettings {
	group := types.OutputGroup{
		Name: aws.String("Apple HLS"),
		OutputGroupSettings: &types.OutputGroupSettings{
			Type: types.OutputGroupTypeHlsGroupSettings,
			HlsGroupSettings: &types.HlsGroupSettings{
				Destination: aws.String(fmt.Sprintf("s3://%s/%s", s.bucket, naming.VideoPrefix(objectKey))),
			},
		},
	}
	// A job template carries its own outputs.
	if s.cfg.JobTemplate == "" {
		for _, p := range hlsPresets {
			group.Outputs = append(group.Outputs, types.Output{
				NameModifier: aws.String(p.modifier),
				Preset:       aws.String(p.preset),
			})
		}
	}

	return &types.JobSettings{
		Inputs: []types.Input{{
			FileInput: aws.String(fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)),
		}},
		OutputGroups: []types.OutputGroup{group},
	}
}

package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/martpet/hotspace-aws/internal/events"
)

// Incoming MediaConvert job state changes carry this source and detail type.
const (
	mediaConvertSource = "aws.mediaconvert"
	jobStateChangeType = "MediaConvert Job State Change"
)

// ErrNotLifecycleEvent rejects payloads that are not MediaConvert job state
// changes.
var ErrNotLifecycleEvent = errors.New("not a MediaConvert job state change")

// lifecycleEvent is the part of an EventBridge envelope the relay reads.
type lifecycleEvent struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Detail     json.RawMessage `json:"detail"`
}

type lifecycleDetail struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// Forward re-publishes a lifecycle event's detail unchanged under the
// emitter's route. It reports false when the event was a duplicate.
func (s *Service) Forward(ctx context.Context, raw []byte) (bool, error) {
	var evt lifecycleEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotLifecycleEvent, err)
	}
	if evt.Source != mediaConvertSource || evt.DetailType != jobStateChangeType || len(evt.Detail) == 0 {
		return false, fmt.Errorf("%w: source=%q detail-type=%q", ErrNotLifecycleEvent, evt.Source, evt.DetailType)
	}

	var detail lifecycleDetail
	if err := json.Unmarshal(evt.Detail, &detail); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotLifecycleEvent, err)
	}
	switch events.Status(detail.Status) {
	case events.StatusStatusUpdate, events.StatusComplete, events.StatusError:
	default:
		return false, fmt.Errorf("%w: status %q", ErrNotLifecycleEvent, detail.Status)
	}

	if evt.ID != "" && s.dedupe != nil {
		seen, err := s.dedupe.Seen(ctx, evt.ID, s.cfg.DedupeTTL)
		if err != nil {
			// Lookup failures fall through to publishing.
			log.Printf("[video] dedupe lookup failed for event %s: %v", evt.ID, err)
		} else if seen {
			log.Printf("[video] job=%s event=%s duplicate dropped", detail.JobID, evt.ID)
			return false, nil
		}
	}

	if err := s.emitter.EmitRaw(ctx, detail.Status, evt.Detail); err != nil {
		if evt.ID != "" && s.dedupe != nil {
			if rerr := s.dedupe.Remove(ctx, evt.ID); rerr != nil {
				log.Printf("[video] failed to release event %s: %v", evt.ID, rerr)
			}
		}
		return false, err
	}
	log.Printf("[video] job=%s status=%s forwarded", detail.JobID, detail.Status)
	return true, nil
}

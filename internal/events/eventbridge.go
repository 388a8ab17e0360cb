package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

type putEventsAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher puts status events on an EventBridge bus.
type EventBridgePublisher struct {
	client  putEventsAPI
	busName string
}

func NewEventBridgePublisher(cfg aws.Config, busName string) *EventBridgePublisher {
	return &EventBridgePublisher{client: eventbridge.NewFromConfig(cfg), busName: busName}
}

// reservedSourcePrefix is kept for AWS services; PutEvents rejects it.
const reservedSourcePrefix = "aws."

func (p *EventBridgePublisher) Publish(ctx context.Context, source, detailType string, detail []byte) error {
	if strings.HasPrefix(source, reservedSourcePrefix) {
		return fmt.Errorf("event source %q uses the reserved %q prefix", source, reservedSourcePrefix)
	}
	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			Source:       aws.String(source),
			DetailType:   aws.String(detailType),
			Detail:       aws.String(string(detail)),
			EventBusName: aws.String(p.busName),
		}},
	})
	if err != nil {
		return err
	}
	// PutEvents reports per-entry failures in a successful response.
	if out.FailedEntryCount > 0 {
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				return fmt.Errorf("put event rejected: %s: %s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("put event rejected: %d failed entries", out.FailedEntryCount)
	}
	return nil
}

func (p *EventBridgePublisher) Close() error { return nil }

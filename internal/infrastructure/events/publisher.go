package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/repository"
)

// ChangePublisher forwards committed change sets outside the process.
type ChangePublisher interface {
	Publish(ctx context.Context, cs repository.ChangeSet) error
}

// PutEventsAPI is the part of the EventBridge client the publisher needs.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Change operations used as the second part of an event detail type.
const (
	OperationCreated = "created"
	OperationUpdated = "updated"
	OperationDeleted = "deleted"
)

// ChangeDetail is the JSON body of a published event.
type ChangeDetail struct {
	Operation string            `json:"operation"`
	Record    repository.Record `json:"record"`
	At        time.Time         `json:"at"`
}

// EventBridgePublisher publishes one event per changed record.
type EventBridgePublisher struct {
	client    PutEventsAPI
	eventBus  string
	source    string
	batchSize int
	now       func() time.Time
}

// NewEventBridgePublisher creates a publisher for the given bus and source.
func NewEventBridgePublisher(client PutEventsAPI, eventBus, source string) *EventBridgePublisher {
	if eventBus == "" {
		eventBus = "default"
	}
	if source == "" {
		source = "taxonomy-backend"
	}
	return &EventBridgePublisher{
		client:    client,
		eventBus:  eventBus,
		source:    source,
		batchSize: 10, // PutEvents accepts at most 10 entries
		now:       time.Now,
	}
}

// Publish sends every record of cs, in batches of at most ten entries.
func (p *EventBridgePublisher) Publish(ctx context.Context, cs repository.ChangeSet) error {
	entries, err := p.entries(cs)
	if err != nil {
		return err
	}

	for i := 0; i < len(entries); i += p.batchSize {
		end := i + p.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := p.publishBatch(ctx, entries[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) entries(cs repository.ChangeSet) ([]types.PutEventsRequestEntry, error) {
	now := p.now()
	var entries []types.PutEventsRequestEntry

	add := func(op string, records []repository.Record) error {
		for _, r := range records {
			detail, err := json.Marshal(ChangeDetail{Operation: op, Record: r, At: now})
			if err != nil {
				return apperrors.Internal("EVENT_MARSHAL_FAILED", "failed to marshal change event").
					WithCause(err).
					Build()
			}
			entries = append(entries, types.PutEventsRequestEntry{
				EventBusName: aws.String(p.eventBus),
				Source:       aws.String(p.source),
				DetailType:   aws.String(r.Kind + "." + op),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(now),
				Resources:    []string{r.ID},
			})
		}
		return nil
	}

	if err := add(OperationCreated, cs.Created); err != nil {
		return nil, err
	}
	if err := add(OperationUpdated, cs.Updated); err != nil {
		return nil, err
	}
	if err := add(OperationDeleted, cs.Deleted); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, entries []types.PutEventsRequestEntry) error {
	output, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return apperrors.External("PUT_EVENTS_FAILED", "failed to put events").
			WithCause(err).
			Build()
	}
	if output.FailedEntryCount > 0 {
		return apperrors.External("PUT_EVENTS_PARTIAL", fmt.Sprintf("%d events failed to publish", output.FailedEntryCount)).
			Build()
	}
	return nil
}

// NoOpPublisher drops every change set.
type NoOpPublisher struct{}

// Publish does nothing.
func (NoOpPublisher) Publish(context.Context, repository.ChangeSet) error { return nil }

// Subscriber is the part of a store used to attach a forwarder.
type Subscriber interface {
	Subscribe(ctx context.Context, f repository.Filter, handler repository.ChangeHandler) (repository.Subscription, error)
}

// Forward subscribes to every change of store and hands it to publisher.
// Publish failures are logged; they never fail the write that caused them.
func Forward(ctx context.Context, store Subscriber, publisher ChangePublisher, timeout time.Duration, logger *zap.Logger) (repository.Subscription, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return store.Subscribe(ctx, repository.True(), func(cs repository.ChangeSet) {
		pubCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := publisher.Publish(pubCtx, cs); err != nil {
			logger.Error("failed to forward change set",
				zap.Error(err),
				zap.Int("created", len(cs.Created)),
				zap.Int("updated", len(cs.Updated)),
				zap.Int("deleted", len(cs.Deleted)))
		}
	})
}

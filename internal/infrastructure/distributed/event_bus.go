package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"soctel/internal/core/domain"
)

// EventType represents the type of event
type EventType string

const (
	EventSessionStarted    EventType = "session.started"
	EventSessionEnded      EventType = "session.ended"
	EventDeviceConnected   EventType = "device.connected"
	EventDeviceDisconnected EventType = "device.disconnected"
)

// Event represents a distributed event
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SessionID  domain.SessionID `json:"session_id,omitempty"`
	DeviceID   domain.DeviceID  `json:"device_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EventBus provides event publishing and subscription for coordination
// between soctel instances sharing a Redis backend.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channels   []string
}

// NewEventBus creates a new event bus
func NewEventBus(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channels:   []string{"soctel:events"},
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := eb.channels[0]
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"session_id", event.SessionID,
		"device_id", event.DeviceID,
	)

	return nil
}

// Subscribe subscribes to events and calls handler for each event
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channels...)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// PublishSessionStarted publishes a session started event
func (eb *EventBus) PublishSessionStarted(ctx context.Context, sessionID domain.SessionID, deviceID domain.DeviceID) error {
	return eb.Publish(ctx, &Event{
		Type:      EventSessionStarted,
		SessionID: sessionID,
		DeviceID:  deviceID,
	})
}

// PublishSessionEnded publishes a session ended event
func (eb *EventBus) PublishSessionEnded(ctx context.Context, sessionID domain.SessionID, deviceID domain.DeviceID) error {
	return eb.Publish(ctx, &Event{
		Type:      EventSessionEnded,
		SessionID: sessionID,
		DeviceID:  deviceID,
	})
}

// PublishDeviceConnected publishes a device connected event
func (eb *EventBus) PublishDeviceConnected(ctx context.Context, deviceID domain.DeviceID) error {
	return eb.Publish(ctx, &Event{
		Type:     EventDeviceConnected,
		DeviceID: deviceID,
	})
}

// PublishDeviceDisconnected publishes a device disconnected event
func (eb *EventBus) PublishDeviceDisconnected(ctx context.Context, deviceID domain.DeviceID) error {
	return eb.Publish(ctx, &Event{
		Type:     EventDeviceDisconnected,
		DeviceID: deviceID,
	})
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}

// Package events publishes domain events to an external bus. Publishing is
// best-effort: callers log failures and move on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Topics
const (
	TopicPositions    = "positions"
	TopicAlerts       = "alerts"
	TopicTrips        = "trips"
	TopicDeviceAlarms = "device.alarms"
	TopicCommands     = "commands"
)

// Publisher sends payload on topic. key identifies the entity the event is
// about (usually a vehicle id) and becomes part of the routing key.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Envelope is the JSON body every bus receives.
type Envelope struct {
	Topic       string    `json:"topic"`
	Key         string    `json:"key"`
	PublishedAt time.Time `json:"publishedAt"`
	Data        any       `json:"data"`
}

func encode(topic, key string, payload any) ([]byte, error) {
	body, err := json.Marshal(Envelope{
		Topic:       topic,
		Key:         key,
		PublishedAt: time.Now().UTC(),
		Data:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return body, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }

var _ Publisher = Nop{}

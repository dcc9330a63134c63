package events

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttPublishTimeout = 5 * time.Second

var errMQTTTimeout = errors.New("mqtt publish timed out")

// MQTTPublisher publishes at QoS 0 on fleet/<topic>/<key>.
type MQTTPublisher struct {
	client mqtt.Client
}

var _ Publisher = (*MQTTPublisher)(nil)

func NewMQTTPublisher(client mqtt.Client) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

func MQTTTopic(topic, key string) string {
	return "fleet/" + topic + "/" + key
}

func (p *MQTTPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	body, err := encode(topic, key, payload)
	if err != nil {
		return err
	}

	token := p.client.Publish(MQTTTopic(topic, key), 0, false, body)
	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return errMQTTTimeout
	}
	return token.Error()
}

package mqtt

import (
	"context"
	"fmt"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"plant-monitor/backend/pkg/utils"
)

type MQTTClient struct {
	client  mqtt.Client
	builder *MQTTBuilder
}

// Publish sends payload to actualTopic using the publication spec identified by operationID.
// Strings, byte slices and numbers are sent as plain text, anything else as JSON.
// It does not validate the topic against the spec's pattern.
func (c *MQTTClient) Publish(ctx context.Context, operationID string, actualTopic string, payload any) error {
	c.builder.mu.Lock()
	pub, ok := c.builder.publications[operationID]
	c.builder.mu.Unlock()

	if !ok {
		return fmt.Errorf("publication not found for operationID %s", operationID)
	}

	body, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %w", err)
	}

	token := c.client.Publish(actualTopic, byte(pub.QoS), pub.Retained, body)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to topic %s: %w", actualTopic, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", actualTopic, err)
	}

	return nil
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case float64:
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case int:
		return []byte(strconv.Itoa(v)), nil
	default:
		return utils.ToJSON(payload)
	}
}

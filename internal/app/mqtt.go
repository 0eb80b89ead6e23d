package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const connectRetries = 5

// connectMQTT connects to broker with exponential backoff.
func connectMQTT(broker, clientID string, log *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt: connection lost", "err", err)
		})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn("mqtt: connect failed, retrying", "broker", broker, "err", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, connectRetries-1))
	if err != nil {
		return nil, fmt.Errorf("could not connect to MQTT broker %s after retries: %w", broker, err)
	}

	log.Info("mqtt: connected", "broker", broker, "client_id", clientID)
	return client, nil
}

// publishJSON marshals v and publishes it without waiting for the broker.
func publishJSON(client mqtt.Client, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	client.Publish(topic, 0, retained, payload)
	return nil
}

// subscribeJSON decodes every message on topic into a fresh T.
func subscribeJSON[T any](client mqtt.Client, topic string, log *slog.Logger, fn func(T)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.Warn("mqtt: payload unmarshal error", "topic", msg.Topic(), "err", err)
			return
		}
		fn(v)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Info("mqtt: subscribed", "topic", topic)
	return nil
}

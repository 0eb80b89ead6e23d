package sensors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/metal_detector/internal/mag"
)

// MQTTSource receives raw magnetometer payloads published by mag_producer.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger

	mu         sync.Mutex
	subscribed bool
}

// NewMQTTSource uses an already connected client.
func NewMQTTSource(client mqtt.Client, topic string, log *slog.Logger) *MQTTSource {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTSource{client: client, topic: topic, log: log}
}

// Subscribe registers fn for every payload on the raw topic. The producer
// sets the pace; interval is ignored.
func (s *MQTTSource) Subscribe(_ time.Duration, fn func(mag.Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return mag.ErrSubscribed
	}
	if !s.client.IsConnected() {
		return fmt.Errorf("mqtt mag: broker not connected: %w", mag.ErrUnavailable)
	}

	token := s.client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		sample, err := DecodePayload(msg.Payload())
		if err != nil {
			s.log.Debug("mqtt mag: bad payload", "topic", msg.Topic(), "err", err)
			return
		}
		fn(sample)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt mag: subscribe %s: %w", s.topic, token.Error())
	}
	s.subscribed = true
	s.log.Info("mqtt mag: subscribed", "topic", s.topic)
	return nil
}

func (s *MQTTSource) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed {
		return nil
	}
	s.subscribed = false
	token := s.client.Unsubscribe(s.topic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt mag: unsubscribe %s: %w", s.topic, token.Error())
	}
	return nil
}

// DecodePayload parses a raw topic message.
func DecodePayload(b []byte) (mag.Sample, error) {
	var p mag.Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return mag.Sample{}, err
	}
	return p.Sample(), nil
}

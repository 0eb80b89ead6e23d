package app

import (
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/scanner"
)

// mqttPublisher forwards scanner output to the broker. Readings are
// retained so late subscribers get the current state.
type mqttPublisher struct {
	client         mqtt.Client
	topicDetection string
	topicFinds     string
	log            *slog.Logger
}

func (p *mqttPublisher) OnReading(r detector.Reading) {
	if err := publishJSON(p.client, p.topicDetection, true, r); err != nil {
		p.log.Warn("publish reading failed", "err", err)
	}
}

func (p *mqttPublisher) OnFind(f scanner.Find) {
	if err := publishJSON(p.client, p.topicFinds, false, f); err != nil {
		p.log.Warn("publish find failed", "err", err)
	}
}

func (p *mqttPublisher) OnRestart(session string) {
	p.log.Info("sensor stream restarted", "session", session)
}

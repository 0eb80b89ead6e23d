package feedback

import (
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command is the JSON schema published on the feedback topic.
type Command struct {
	Action string `json:"action"` // "sound", "haptic" or "stop"
	Time   string `json:"time"`
}

// MQTT publishes feedback requests so a remote board (buzzer, phone) can act on them.
// Publishing is fire-and-forget: tokens are not waited on.
type MQTT struct {
	Client mqtt.Client
	Topic  string
	Log    *slog.Logger
}

func (m MQTT) PlaySound()     { m.publish("sound") }
func (m MQTT) TriggerHaptic() { m.publish("haptic") }
func (m MQTT) StopSound()     { m.publish("stop") }

func (m MQTT) publish(action string) {
	payload, err := json.Marshal(Command{Action: action, Time: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return
	}
	token := m.Client.Publish(m.Topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil && m.Log != nil {
			m.Log.Warn("feedback: mqtt publish error", "action", action, "err", token.Error())
		}
	}()
}

// Package mqttpub mirrors broadcast events onto an MQTT broker so external
// consumers (companion tooling, other ground nodes) can follow the fleet
// without a websocket session.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/model"
)

const publishTimeout = 5 * time.Second

// Publisher forwards events to the broker.
type Publisher struct {
	client mqtt.Client
	qos    byte
	logger *slog.Logger
}

// NewPublisher connects to the broker using the mqtt.* config keys.
func NewPublisher(logger *slog.Logger) (*Publisher, error) {
	broker := config.GetString("mqtt.brokerUrl")
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(config.GetString("mqtt.clientId")).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(publishTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("connecting to mqtt broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", broker, err)
	}

	logger.Info("mqtt publisher connected", "broker", broker)
	return &Publisher{
		client: client,
		qos:    byte(config.GetInt("mqtt.qos")),
		logger: logger,
	}, nil
}

// topicFor maps an event to its broker topic.
func topicFor(e model.Event) string {
	return fmt.Sprintf("groundlink/%s/events/%s", e.VehicleID, e.Topic)
}

// HandleEvent publishes one event. Registered as a dispatcher sink.
func (p *Publisher) HandleEvent(e model.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	token := p.client.Publish(topicFor(e), p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing %s: timed out", e.Topic)
	}
	return token.Error()
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// Package link forwards tracking commands to motor controllers that live
// outside this process.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/babycam/internal/config"
	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// CommandMessage is the MQTT payload for one motor command.
type CommandMessage struct {
	StepX int       `json:"step_x"`
	StepY int       `json:"step_y"`
	TS    time.Time `json:"ts"`
}

// DialMQTT connects to the broker in cfg. Reconnection is left to paho.
func DialMQTT(ctx context.Context, cfg config.MQTTConfig) (mqtt.Client, error) {
	log := debug.Logger("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// MQTTPublisher publishes each command as JSON on a topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	now    func() time.Time
}

func NewMQTTPublisher(client mqtt.Client, topic string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos, now: time.Now}
}

// Drive publishes cmd and waits for the broker to take it (QoS > 0) or for
// ctx to end.
func (p *MQTTPublisher) Drive(ctx context.Context, cmd tracking.Command) error {
	payload, err := json.Marshal(CommandMessage{StepX: cmd.StepX, StepY: cmd.StepY, TS: p.now().UTC()})
	if err != nil {
		return err
	}
	debug.Trace("MQTT publish %s %s", p.topic, payload)
	if err := wait(ctx, p.client.Publish(p.topic, p.qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing 250ms for in-flight work.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

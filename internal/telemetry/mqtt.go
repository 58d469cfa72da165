// Package telemetry publishes the proximity estimate to an MQTT broker.
// It runs in an ordinary goroutine and only reads lock-free state.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"ble-proximity.klederson.com/internal/config"
	"ble-proximity.klederson.com/internal/display"
	"ble-proximity.klederson.com/internal/signal"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	disconnectMs   = 250
)

// Reading is the published payload.
type Reading struct {
	Estimate  uint8   `json:"estimate"`
	Frame     int     `json:"frame"`
	DistanceM float64 `json:"distance_m"`
	Bursts    uint64  `json:"bursts"`
}

// NewReading derives the payload for an estimate.
func NewReading(estimate uint8, bursts uint64) Reading {
	return Reading{
		Estimate:  estimate,
		Frame:     display.FrameIndex(estimate),
		DistanceM: signal.EstimateDistance(estimate),
		Bursts:    bursts,
	}
}

// publisher is the part of mqtt.Client the loop needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends a Reading whenever the estimate changes.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *zap.Logger
	client publisher
	conn   mqtt.Client
}

// NewPublisher creates a publisher for cfg. Call Connect before Run.
func NewPublisher(cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// Connect dials the broker.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("MQTT connect to %s: timed out", p.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect to %s: %w", p.cfg.Broker, err)
	}
	p.conn = client
	p.client = client
	p.logger.Info("connected to MQTT", zap.String("broker", p.cfg.Broker), zap.String("topic", p.cfg.Topic))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(disconnectMs)
	}
}

// Run polls est every interval and publishes when it changes. A failed
// publish is retried on the next poll.
func (p *Publisher) Run(ctx context.Context, est *signal.Estimate, c *signal.Collector) error {
	if p.client == nil {
		return fmt.Errorf("MQTT publisher not connected")
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		v := est.Load()
		if int(v) == last {
			continue
		}
		if err := p.publish(NewReading(v, c.Stats().Bursts)); err != nil {
			p.logger.Warn("publish failed", zap.Error(err))
			continue
		}
		last = int(v)
	}
}

func (p *Publisher) publish(r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	token := p.client.Publish(p.cfg.Topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out", p.cfg.Topic)
	}
	return token.Error()
}

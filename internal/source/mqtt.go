package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/logging"
)

const mqttTimeout = 5 * time.Second

// MqttConfig describes the broker subscription.
type MqttConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientId string `mapstructure:"client_id"`
	Qos      byte   `mapstructure:"qos"`
}

// MqttSource subscribes to a topic carrying either one JSON event or a JSON
// array of events per message.
type MqttSource struct {
	topic  string
	client mqtt.Client
	queue  *ChannelSource
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Source = (*MqttSource)(nil)

func NewMqtt(ctx context.Context, cfg MqttConfig, logger logging.Logger) (*MqttSource, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("missing mqtt broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic must not be empty")
	}

	s := newMqtt(ctx, cfg.Topic, logger)

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientId)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOrderMatters(true)

	// Resubscribe on every (re)connect since the session may be clean.
	opts.OnConnect = func(c mqtt.Client) {
		token := c.Subscribe(cfg.Topic, cfg.Qos, s.onMessage)
		if !token.WaitTimeout(mqttTimeout) {
			s.logger.Error("mqtt subscribe timeout", "topic", cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", err)
			return
		}
		s.logger.Info("mqtt subscribed", "broker", broker, "topic", cfg.Topic, "qos", cfg.Qos)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		s.cancel()
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		s.cancel()
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return s, nil
}

func newMqtt(ctx context.Context, topic string, logger logging.Logger) *MqttSource {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &MqttSource{
		topic:  topic,
		queue:  NewChannel("mqtt:"+topic, 0),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *MqttSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.handle(msg.Payload())
}

func (s *MqttSource) handle(payload []byte) {
	payload = bytes.TrimSpace(payload)

	var events []detection.Event
	if len(payload) > 0 && payload[0] == '[' {
		var raws []json.RawMessage
		err := json.Unmarshal(payload, &raws)
		if err != nil {
			s.logger.Warn("skipping undecodable message", "topic", s.topic, "error", err)
			return
		}
		for _, raw := range raws {
			var ev detection.Event
			err := json.Unmarshal(raw, &ev)
			if err != nil {
				s.logger.Warn("skipping undecodable event", "topic", s.topic, "error", err)
				continue
			}
			events = append(events, ev)
		}
	} else {
		var ev detection.Event
		err := json.Unmarshal(payload, &ev)
		if err != nil {
			s.logger.Warn("skipping undecodable event", "topic", s.topic, "error", err)
			return
		}
		events = append(events, ev)
	}

	err := s.queue.Push(s.ctx, events...)
	if err != nil {
		s.logger.Warn("dropping events", "topic", s.topic, "count", len(events), "error", err)
	}
}

func (s *MqttSource) Name() string {
	return "mqtt:" + s.topic
}

func (s *MqttSource) Next(ctx context.Context) (detection.Event, error) {
	return s.queue.Next(ctx)
}

func (s *MqttSource) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Unsubscribe(s.topic).WaitTimeout(mqttTimeout)
		s.client.Disconnect(250)
	}
	s.cancel()

	return s.queue.Close()
}

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/logging"
)

// KafkaConfig groups the consumer settings for the detection topic.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupId string   `mapstructure:"group_id"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes one JSON event per message. With a consumer group a
// message is committed once the following one is requested, so an event is
// acknowledged only after the caller has taken it. Without a group nothing
// is committed.
type KafkaSource struct {
	topic   string
	reader  messageReader
	logger  logging.Logger
	grouped bool

	uncommitted *kafka.Message
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

var _ Source = (*KafkaSource)(nil)

func NewKafka(cfg KafkaConfig, logger logging.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}

	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if cfg.GroupId != "" {
		rc.GroupID = cfg.GroupId
		rc.GroupTopics = []string{cfg.Topic}
		rc.StartOffset = kafka.FirstOffset
	} else {
		rc.Topic = cfg.Topic
	}

	return newKafka(cfg.Topic, kafka.NewReader(rc), cfg.GroupId != "", logger), nil
}

func newKafka(topic string, reader messageReader, grouped bool, logger logging.Logger) *KafkaSource {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &KafkaSource{
		topic:      topic,
		reader:     reader,
		logger:     logger,
		grouped:    grouped,
		minBackoff: time.Second,
		maxBackoff: 10 * time.Second,
	}
}

func (s *KafkaSource) Name() string {
	return "kafka:" + s.topic
}

func (s *KafkaSource) Next(ctx context.Context) (detection.Event, error) {
	s.commit(ctx)

	backoff := s.minBackoff
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return detection.Event{}, err
			}
			s.logger.Error("kafka fetch failed", "topic", s.topic, "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				if backoff < s.maxBackoff {
					backoff *= 2
				}
				continue
			case <-ctx.Done():
				return detection.Event{}, ctx.Err()
			}
		}
		backoff = s.minBackoff

		var ev detection.Event
		err = json.Unmarshal(msg.Value, &ev)
		if err != nil {
			s.logger.Warn("skipping undecodable event", "topic", s.topic,
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			s.track(msg)
			s.commit(ctx)
			continue
		}

		s.track(msg)

		return ev, nil
	}
}

// track marks msg for the next commit. Plain partition readers have no
// group to commit to.
func (s *KafkaSource) track(msg kafka.Message) {
	if !s.grouped {
		return
	}
	s.uncommitted = &msg
}

func (s *KafkaSource) commit(ctx context.Context) {
	if s.uncommitted == nil {
		return
	}

	err := s.reader.CommitMessages(ctx, *s.uncommitted)
	if err != nil {
		s.logger.Error("kafka commit failed", "topic", s.topic, "offset", s.uncommitted.Offset, "error", err)
	}
	s.uncommitted = nil
}

func (s *KafkaSource) Close() error {
	s.commit(context.Background())

	return s.reader.Close()
}

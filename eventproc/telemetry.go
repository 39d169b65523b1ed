package eventproc

import (
	"encoding/json"

	"github.com/Shopify/sarama"

	"github.com/synapsenet/miner/internal/minerlog"
)

// TransitionRecord is one lifecycle-transition record mirrored onto the
// telemetry topic when Kafka is configured (spec §4.6 "added": an operational
// mirror of lifecycle transitions, entirely separate from the queue's
// journal, which is a local record of in-flight chain submissions rather
// than a fleet-wide lifecycle feed).
type TransitionRecord struct {
	EventKind string `json:"event_kind"`
	TaskID    uint64 `json:"task_id"`
	NewState  string `json:"new_state"`
}

const defaultTopic = "synapsenet.miner.task-lifecycle"

// Telemetry mirrors TransitionRecords onto a Kafka topic via a sarama
// SyncProducer. A Telemetry built with no brokers configured is a no-op:
// Emit silently drops every record, so callers never need to branch on
// whether telemetry is enabled.
type Telemetry struct {
	producer sarama.SyncProducer
	topic    string
	log      minerlog.Logger
}

// NewTelemetry builds a Telemetry. An empty brokers list returns a
// functioning no-op Telemetry rather than an error, since KAFKA_BROKERS is
// an optional ambient sink (spec §6).
func NewTelemetry(brokers []string, topic string) (*Telemetry, error) {
	log := minerlog.Module("eventproc.telemetry")
	if len(brokers) == 0 {
		return &Telemetry{log: log}, nil
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	if topic == "" {
		topic = defaultTopic
	}
	return &Telemetry{producer: producer, topic: topic, log: log}, nil
}

// Emit mirrors rec onto the telemetry topic, logging (rather than
// propagating) a failure: a telemetry outage must never block or retry
// chain-facing dispatch.
func (t *Telemetry) Emit(rec TransitionRecord) {
	if t == nil || t.producer == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		t.log.Warn("telemetry record marshal failed", "err", err)
		return
	}
	msg := &sarama.ProducerMessage{Topic: t.topic, Value: sarama.ByteEncoder(payload)}
	if _, _, err := t.producer.SendMessage(msg); err != nil {
		t.log.Warn("telemetry send failed", "err", err)
	}
}

// Close releases the underlying producer, if any.
func (t *Telemetry) Close() error {
	if t == nil || t.producer == nil {
		return nil
	}
	return t.producer.Close()
}

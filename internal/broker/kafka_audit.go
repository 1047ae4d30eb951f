package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IliaW/pay-gate/config"
	"github.com/IliaW/pay-gate/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

// KafkaAuditClient publishes denied-request events (402/403) to the audit
// topic. Fire-and-forget: an audit failure never affects the response.
type KafkaAuditClient struct {
	kafkaWriter *kafka.Writer
	serviceName string
	cfg         *config.ProducerConfig
}

func NewKafkaAudit(serviceName string, cfg *config.ProducerConfig) *KafkaAuditClient {
	kafkaWriter := kafka.Writer{
		Addr:     kafka.TCP(cfg.Addr...),
		Topic:    cfg.AuditTopicName,
		Balancer: &kafka.Hash{},
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("failed to send messages to the audit topic.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
	return &KafkaAuditClient{
		kafkaWriter: &kafkaWriter,
		serviceName: serviceName,
		cfg:         cfg,
	}
}

func (a *KafkaAuditClient) SendDenial(requestID, crawler, path, outcome, price string) {
	event := model.AuditEvent{
		ServiceName: a.serviceName,
		RequestID:   requestID,
		Crawler:     crawler,
		Path:        path,
		Outcome:     outcome,
		Price:       price,
		OccurredAt:  time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshaling error.", slog.String("err", err.Error()), slog.Any("event", event))
		return
	}

	err = a.kafkaWriter.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(crawler),
		Value: body,
	})
	if err != nil {
		slog.Error("failed to send message to the audit topic.", slog.String("err", err.Error()))
		return
	}
	slog.Debug("successfully sent message to the audit topic.", slog.String("outcome", outcome))
}

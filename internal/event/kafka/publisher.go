package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/rasedi-pay/internal/service"
)

// KafkaTerminalEventPublisher реализует EventPublisher используя Kafka.
// Публикует событие, когда транзакция впервые достигает терминального
// состояния - потребители (нотификации, аналитика) узнают об исходе платежа.
type KafkaTerminalEventPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
	topic  string
}

// NewKafkaTerminalEventPublisher создаёт новый Kafka publisher терминальных событий
func NewKafkaTerminalEventPublisher(logger *zap.Logger, brokers []string, topic string) *KafkaTerminalEventPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaTerminalEventPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// Close закрывает Kafka writer
func (p *KafkaTerminalEventPublisher) Close() error {
	return p.writer.Close()
}

// PublishTerminal публикует событие терминального состояния транзакции в Kafka
func (p *KafkaTerminalEventPublisher) PublishTerminal(ctx context.Context, event service.TerminalEvent) error {
	payload := map[string]interface{}{
		"event_id":      uuid.New().String(),
		"event_type":    "payment.transaction.terminal",
		"event_version": 1,
		"occurred_at":   time.Now().UTC().Format(time.RFC3339),
		"local_ref":     event.LocalRef,
		"gateway_ref":   event.GatewayRef,
		"state":         string(event.State),
		"reason":        event.Reason,
	}

	valueBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal terminal event",
			zap.Error(err),
			zap.String("local_ref", event.LocalRef),
		)
		return err
	}

	// Ключ - gateway reference: события одной транзакции попадают в одну партицию
	message := kafka.Message{
		Key:   []byte(event.GatewayRef),
		Value: valueBytes,
	}

	err = p.writer.WriteMessages(ctx, message)
	if err != nil {
		p.logger.Error("failed to publish terminal event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("local_ref", event.LocalRef),
		)
		return err
	}

	p.logger.Info("terminal event published",
		zap.String("topic", p.topic),
		zap.String("local_ref", event.LocalRef),
		zap.String("state", string(event.State)),
	)

	return nil
}

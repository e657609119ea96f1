package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"drinkOnMeAPI/internal/types/drink"
)

// LedgerProducer publishes accepted-drink ledger events to Kafka for the
// analytics pipeline. Optional: the admission controller works without it.
type LedgerProducer struct {
	writer *kafka.Writer
}

func NewLedgerProducer(brokers []string, topic string) *LedgerProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &LedgerProducer{writer: w}
}

func (p *LedgerProducer) PublishEntry(e drink.LedgerEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(e)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.UserID), Value: b})
}

func (p *LedgerProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

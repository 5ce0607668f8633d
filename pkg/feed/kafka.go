package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/glsig/dexchange/pkg/exchange"
)

// Producer publishes executed trades to a Kafka topic, keyed by pair so
// consumers see each pair's trades in execution order.
type Producer struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewProducer(brokers []string, topic string, log *zap.SugaredLogger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log,
	}
}

// PublishTrade is wired as the engine's trade hook. The engine calls it
// after the state commit, outside error flow, so publish failures are
// logged and dropped rather than bounced back into matching.
func (p *Producer) PublishTrade(t exchange.Trade) {
	value, err := json.Marshal(t)
	if err != nil {
		p.log.Errorw("encode trade", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.Pair),
		Value: value,
	})
	if err != nil {
		p.log.Errorw("publish trade", "pair", t.Pair, "err", err)
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

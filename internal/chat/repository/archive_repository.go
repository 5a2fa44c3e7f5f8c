package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"chat_sync_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// MessageArchiver append-only stream of sequenced messages
type MessageArchiver interface {
	Archive(ctx context.Context, m domain.Message) error
	Close() error
}

type kafkaArchiver struct {
	writer *kafka.Writer
}

// NewKafkaArchiver write messages keyed by conversation id, so one room stays in one partition
func NewKafkaArchiver(writer *kafka.Writer) MessageArchiver {
	return &kafkaArchiver{writer: writer}
}

func (a *kafkaArchiver) Archive(ctx context.Context, m domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	err = a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.ConversationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(m.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("archive message %s: %w", m.ID, err)
	}
	return nil
}

func (a *kafkaArchiver) Close() error {
	return a.writer.Close()
}

type nopArchiver struct{}

// NewNopArchiver used when no brokers are configured
func NewNopArchiver() MessageArchiver {
	return nopArchiver{}
}

func (nopArchiver) Archive(context.Context, domain.Message) error { return nil }

func (nopArchiver) Close() error { return nil }

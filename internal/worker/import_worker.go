// Package worker holds the handlers that run behind the AMQP consumer.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"wallet/internal/amqp"
	"wallet/internal/events"
	"wallet/internal/log"
)

// ImportWorker turns storage-imported broker messages for one slot into
// in-process storage-imported events.
type ImportWorker struct {
	key       string
	publisher events.Publisher
	logger    *log.Logger

	handled int64
	ignored int64
}

func NewImportWorker(key string, publisher events.Publisher, logger *log.Logger) *ImportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ImportWorker{
		key:       key,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentAMQP),
	}
}

// HandleImportMessage publishes events.StorageImported and returns once every
// subscriber is done. Messages for other slots are acknowledged and dropped.
// An error means the reload failed; redelivery would not help.
func (w *ImportWorker) HandleImportMessage(ctx context.Context, msg *amqp.StorageImportedMessage) error {
	if msg.Key != w.key {
		atomic.AddInt64(&w.ignored, 1)
		w.logger.DebugContext(ctx, "Ignoring import for another slot",
			log.FieldKey, msg.Key)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing storage imported message",
		log.FieldKey, msg.Key,
		log.FieldOperation, log.OpImport,
		"source", msg.Source,
		"sent_at", msg.Timestamp)

	if err := w.publisher.Publish(ctx, events.StorageImported); err != nil {
		return fmt.Errorf("reload after import from %q: %w", msg.Source, err)
	}
	atomic.AddInt64(&w.handled, 1)
	return nil
}

// Stats reports how many messages were relayed and how many ignored.
func (w *ImportWorker) Stats() (handled, ignored int64) {
	return atomic.LoadInt64(&w.handled), atomic.LoadInt64(&w.ignored)
}

package ingestion

import (
	"TxLedger/internal/event"
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// EventPublisher writes events to JetStream in the wire format NATSSource
// reads. Subjects follow <prefix>.<client>.
type EventPublisher struct {
	js     jetstream.JetStream
	prefix string
}

func NewEventPublisher(js jetstream.JetStream, prefix string) *EventPublisher {
	return &EventPublisher{
		js:     js,
		prefix: prefix,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, evt event.Transaction) error {
	data, err := MarshalJSON(evt)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%d", p.prefix, evt.Client)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", evt, err)
	}
	return nil
}

// Forward copies every event from src to the publisher until src is
// exhausted. Decode errors are passed to onSkip and skipped.
func (p *EventPublisher) Forward(ctx context.Context, src Source, onSkip func(*DecodeError)) (int, error) {
	n := 0
	for {
		evt, err := src.Next(ctx)
		if err != nil {
			if de, ok := AsDecodeError(err); ok {
				if onSkip != nil {
					onSkip(de)
				}
				continue
			}
			if IsEndOfStream(err) {
				return n, nil
			}
			return n, err
		}
		if err := p.Publish(ctx, evt); err != nil {
			return n, err
		}
		n++
	}
}

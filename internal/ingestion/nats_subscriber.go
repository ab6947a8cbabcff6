package ingestion

import (
	"TxLedger/internal/event"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSourceConfig selects the JetStream stream and durable consumer to read.
type NATSSourceConfig struct {
	Stream   string
	Subject  string
	Consumer string
	// IdleTimeout ends the stream with io.EOF after this long without a
	// message. Zero waits until the context ends.
	IdleTimeout time.Duration
}

// NATSSource reads JSON events from a JetStream durable consumer. Messages
// are acked when handed to the caller and terminated when they fail to parse.
type NATSSource struct {
	cfg     NATSSourceConfig
	msgs    chan jetstream.Msg
	stop    chan struct{}
	consume jetstream.ConsumeContext
	logger  zerolog.Logger
}

// NewNATSSource creates (or reuses) the durable consumer and starts
// receiving. Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func NewNATSSource(ctx context.Context, js jetstream.JetStream, cfg NATSSourceConfig, logger zerolog.Logger) (*NATSSource, error) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Consumer, err)
	}

	s := &NATSSource{
		cfg:    cfg,
		msgs:   make(chan jetstream.Msg),
		stop:   make(chan struct{}),
		logger: logger,
	}

	s.consume, err = consumer.Consume(func(msg jetstream.Msg) {
		select {
		case s.msgs <- msg:
		case <-s.stop:
			msg.Nak()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", cfg.Consumer, err)
	}

	logger.Info().
		Str("stream", cfg.Stream).
		Str("subject", cfg.Subject).
		Str("consumer", cfg.Consumer).
		Msg("subscribed")
	return s, nil
}

func (s *NATSSource) Next(ctx context.Context) (event.Transaction, error) {
	var idle <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		timer := time.NewTimer(s.cfg.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	select {
	case msg := <-s.msgs:
		evt, err := ParseJSON(msg.Data())
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				if meta, merr := msg.Metadata(); merr == nil {
					de.Position = int64(meta.Sequence.Stream)
				}
			}
			msg.Term()
			return event.Transaction{}, err
		}
		if err := msg.Ack(); err != nil {
			s.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("ack failed")
		}
		return evt, nil

	case <-idle:
		s.logger.Info().Dur("idle", s.cfg.IdleTimeout).Msg("no events within idle timeout")
		return event.Transaction{}, io.EOF

	case <-ctx.Done():
		return event.Transaction{}, ctx.Err()
	}
}

// Close stops the consumer. Messages delivered but not yet read are nak'd
// for redelivery.
func (s *NATSSource) Close() error {
	s.consume.Stop()
	close(s.stop)
	s.logger.Info().Msg("NATS consumer stopped")
	return nil
}

// EnsureInputStream creates the stream events are published to.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureInputStream(ctx context.Context, js jetstream.JetStream, name, subject string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

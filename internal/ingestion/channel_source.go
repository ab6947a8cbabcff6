package ingestion

import (
	"TxLedger/internal/event"
	"context"
	"io"
	"sync"

	"github.com/shopspring/decimal"
)

// ChannelSource is an in-process Source fed through Inject calls. It ends
// with io.EOF once Close has been called and every injected event was read.
type ChannelSource struct {
	events    chan event.Transaction
	closeOnce sync.Once
}

func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{events: make(chan event.Transaction, buffer)}
}

// Inject queues evt, blocking while the buffer is full.
func (s *ChannelSource) Inject(ctx context.Context, evt event.Transaction) error {
	select {
	case s.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectDeposit queues a deposit.
func (s *ChannelSource) InjectDeposit(ctx context.Context, client event.ClientID, tx event.TxID, amount decimal.Decimal) error {
	return s.Inject(ctx, event.NewDeposit(client, tx, amount))
}

// InjectWithdrawal queues a withdrawal.
func (s *ChannelSource) InjectWithdrawal(ctx context.Context, client event.ClientID, tx event.TxID, amount decimal.Decimal) error {
	return s.Inject(ctx, event.NewWithdrawal(client, tx, amount))
}

// Close ends the stream. Inject must not be called afterwards.
func (s *ChannelSource) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

func (s *ChannelSource) Next(ctx context.Context) (event.Transaction, error) {
	select {
	case evt, ok := <-s.events:
		if !ok {
			return event.Transaction{}, io.EOF
		}
		return evt, nil
	case <-ctx.Done():
		return event.Transaction{}, ctx.Err()
	}
}

// Pending returns the number of injected events not yet read.
func (s *ChannelSource) Pending() int {
	return len(s.events)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []event.Transaction
	pos    int
}

func NewSliceSource(events ...event.Transaction) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next(ctx context.Context) (event.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return event.Transaction{}, err
	}
	if s.pos >= len(s.events) {
		return event.Transaction{}, io.EOF
	}
	evt := s.events[s.pos]
	s.pos++
	return evt, nil
}

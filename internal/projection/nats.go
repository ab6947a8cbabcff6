package projection

import (
	"TxLedger/internal/ledger"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
)

// AccountMessage is the JSON body published per account.
type AccountMessage struct {
	RunID     string          `json:"run_id"`
	Client    uint16          `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// NATSSink publishes one message per account to <prefix>.<client> on JetStream.
type NATSSink struct {
	js     jetstream.JetStream
	prefix string
	runID  string
}

func NewNATSSink(js jetstream.JetStream, prefix, runID string) *NATSSink {
	return &NATSSink{
		js:     js,
		prefix: prefix,
		runID:  runID,
	}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Write(ctx context.Context, accounts []ledger.Account) error {
	for _, a := range accounts {
		data, err := json.Marshal(NewAccountMessage(s.runID, a))
		if err != nil {
			return fmt.Errorf("marshal client %d: %w", a.Client, err)
		}
		if _, err := s.js.Publish(ctx, Subject(s.prefix, a), data); err != nil {
			return fmt.Errorf("publish client %d: %w", a.Client, err)
		}
	}
	return nil
}

// NewAccountMessage converts an account to its wire form.
func NewAccountMessage(runID string, a ledger.Account) AccountMessage {
	return AccountMessage{
		RunID:     runID,
		Client:    uint16(a.Client),
		Available: a.Available,
		Held:      a.Held,
		Total:     a.Total,
		Locked:    a.Locked,
	}
}

// Subject returns the publish subject for an account.
func Subject(prefix string, a ledger.Account) string {
	return fmt.Sprintf("%s.%d", prefix, a.Client)
}

// EnsureOutputStream creates the stream that captures published accounts.
func EnsureOutputStream(ctx context.Context, js jetstream.JetStream, name, prefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{prefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create output stream %s: %w", name, err)
	}
	return nil
}

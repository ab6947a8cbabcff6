package projection

import (
	"TxLedger/internal/ledger"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"client", "available", "held", "total", "locked"}

// CSVSink writes accounts as CSV with a header row.
type CSVSink struct {
	w io.Writer
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: w}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(ctx context.Context, accounts []ledger.Account) error {
	cw := csv.NewWriter(s.w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(FormatRecord(a)); err != nil {
			return fmt.Errorf("write client %d: %w", a.Client, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatRecord renders an account in output column order. Amounts never use
// exponent notation and carry at most four fractional digits.
func FormatRecord(a ledger.Account) []string {
	return []string{
		strconv.FormatUint(uint64(a.Client), 10),
		a.Available.String(),
		a.Held.String(),
		a.Total.String(),
		strconv.FormatBool(a.Locked),
	}
}

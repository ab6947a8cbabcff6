package ingestion

import (
	"TxLedger/internal/event"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVSource reads events from CSV input with a type,client,tx,amount header.
// Rows may omit the trailing amount column.
type CSVSource struct {
	r       *csv.Reader
	closer  io.Closer
	started bool
}

func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &CSVSource{r: cr}
}

// OpenCSV opens path for reading. Close releases the file.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	s := NewCSVSource(f)
	s.closer = f
	return s, nil
}

func (s *CSVSource) Next(ctx context.Context) (event.Transaction, error) {
	for {
		if err := ctx.Err(); err != nil {
			return event.Transaction{}, err
		}

		record, err := s.r.Read()
		if err == io.EOF {
			return event.Transaction{}, io.EOF
		}

		var perr *csv.ParseError
		if errors.As(err, &perr) {
			s.started = true
			return event.Transaction{}, &DecodeError{
				Kind:     KindSyntax,
				Position: int64(perr.Line),
				Err:      perr.Err,
			}
		}
		if err != nil {
			return event.Transaction{}, fmt.Errorf("read input: %w", err)
		}

		line, _ := s.r.FieldPos(0)

		if !s.started {
			s.started = true
			if isHeader(record) {
				continue
			}
		}

		evt, err := ParseRecord(record)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				de.Position = int64(line)
			}
			return event.Transaction{}, err
		}
		return evt, nil
	}
}

func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "type")
}

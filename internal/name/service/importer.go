package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"rollguard/internal/name/models"
	dErrors "rollguard/pkg/domain-errors"
)

const importChunk = 500

// FrequencyWriter persists corpus rows.
type FrequencyWriter interface {
	Upsert(ctx context.Context, entries []models.Frequency, now time.Time) (int, error)
}

// TxRunner runs fn in a transaction published through ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Purger drops cached lookups after an import.
type Purger interface {
	Purge()
}

// Importer loads the name-frequency corpus from CSV.
type Importer struct {
	writer FrequencyWriter
	tx     TxRunner
	purger Purger
	now    func() time.Time
}

// NewImporter creates an importer. purger may be nil.
func NewImporter(writer FrequencyWriter, tx TxRunner, purger Purger) *Importer {
	return &Importer{writer: writer, tx: tx, purger: purger, now: time.Now}
}

// ImportCSV reads role,name,frequency rows (header optional) and upserts
// them in chunks, one transaction per chunk. Names are folded and
// lower-cased the same way submitted names are. It returns the number of
// rows written.
func (i *Importer) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var (
		batch   []models.Frequency
		written int
		line    int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := i.tx.RunInTx(ctx, func(ctx context.Context) error {
			n, err := i.writer.Upsert(ctx, batch, i.now())
			written += n
			return err
		})
		batch = batch[:0]
		return err
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return written, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("line %d: malformed csv", line))
		}
		if line == 1 && strings.EqualFold(record[0], "role") {
			continue
		}
		entry, err := parseFrequency(record)
		if err != nil {
			return written, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("line %d", line))
		}
		batch = append(batch, entry)
		if len(batch) >= importChunk {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	if i.purger != nil {
		i.purger.Purge()
	}
	return written, nil
}

func parseFrequency(record []string) (models.Frequency, error) {
	role, err := models.ParseRole(strings.TrimSpace(record[0]))
	if err != nil {
		return models.Frequency{}, err
	}
	toks := tokens(record[1])
	if len(toks) != 1 {
		return models.Frequency{}, fmt.Errorf("name %q must be a single token", record[1])
	}
	freq, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil || freq <= 0 {
		return models.Frequency{}, fmt.Errorf("frequency %q must be a positive integer", record[2])
	}
	return models.Frequency{Role: role, Name: toks[0], Frequency: freq}, nil
}

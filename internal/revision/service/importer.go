package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	auditmodels "rollguard/internal/auditchain/models"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/revision/models"
	dErrors "rollguard/pkg/domain-errors"
)

const (
	importChunk  = 500
	deathColumns = 6
)

// ImportDeaths loads death-registry rows from CSV:
//
//	unique_identifier,full_name,last_name,date_of_birth,date_of_death,source
//
// The header row is optional. Rows are upserted in chunks, one transaction
// per chunk, and the import is recorded in the audit log. It returns the
// number of rows written.
func (s *Service) ImportDeaths(ctx context.Context, r io.Reader, source string) (int, error) {
	if source == "" {
		source = "csv_import"
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = deathColumns
	reader.TrimLeadingSpace = true

	var (
		batch   []models.DeathRecord
		written int
		line    int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
			n, err := s.store.UpsertDeaths(ctx, batch, s.now(ctx).UTC().Truncate(time.Microsecond))
			written += n
			return err
		})
		batch = batch[:0]
		if err != nil {
			return translate(err, "failed to import death records")
		}
		return nil
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
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "unique_identifier") {
			continue
		}
		death, err := parseDeath(record, source)
		if err != nil {
			return written, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("line %d", line))
		}
		batch = append(batch, death)
		if len(batch) >= importChunk {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionDeathsImported,
			EntityType: auditmodels.EntityDeathRegistry,
			EntityID:   source,
			Actor:      middleware.ActorFrom(ctx).ID,
			Details:    map[string]int{"rows": written},
		})
		return err
	})
	if err != nil {
		return written, translate(err, "failed to audit death import")
	}
	s.logger.InfoContext(ctx, "death registry imported", "rows", written, "source", source)
	return written, nil
}

func parseDeath(record []string, source string) (models.DeathRecord, error) {
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	d := models.DeathRecord{
		UniqueIdentifier: record[0],
		FullName:         record[1],
		LastName:         record[2],
		DateOfBirth:      record[3],
		DateOfDeath:      record[4],
		Source:           record[5],
	}
	if d.UniqueIdentifier == "" {
		return d, errors.New("unique identifier is required")
	}
	if d.DateOfDeath == "" {
		return d, errors.New("date of death is required")
	}
	for _, date := range []string{d.DateOfBirth, d.DateOfDeath} {
		if date == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return d, fmt.Errorf("date %q must be YYYY-MM-DD", date)
		}
	}
	if d.Source == "" {
		d.Source = source
	}
	return d, nil
}

// Package sink records the durable trace of a batch: every raw field is
// staged on arrival and settled with its outcome, and per-field failures are
// written to the activity log.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"harmonycore/internal/logging"
	"harmonycore/pkg/domain"
)

// ErrInvalidStatus is returned when a staged field is settled with a status
// that is not terminal.
var ErrInvalidStatus = errors.New("invalid staging status")

// Sink writes staging and failure traces. It never touches warehouse rows.
type Sink struct {
	store  domain.PersistentStore
	actor  string
	logger *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithActor sets the actor stamped on failure entries that carry none.
func WithActor(actor string) Option {
	return func(s *Sink) {
		if actor != "" {
			s.actor = actor
		}
	}
}

// WithLogger sets the sink logger.
func WithLogger(l *slog.Logger) Option { return func(s *Sink) { s.logger = logging.OrDiscard(l) } }

// New returns a sink writing to store.
func New(store domain.PersistentStore, opts ...Option) *Sink {
	s := &Sink{store: store, actor: "harmonize", logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage appends field to staging_kv with status received.
func (s *Sink) Stage(ctx context.Context, batchID string, field domain.RawField) (domain.StagedField, error) {
	var staged domain.StagedField
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		staged, err = tx.AppendStaged(domain.StagedField{
			BatchID:      batchID,
			SourceFileID: field.SourceFileID,
			FieldKey:     field.FieldKey,
			Value:        field.Value,
			Status:       domain.StagingReceived,
		})
		return err
	})
	if err != nil {
		return domain.StagedField{}, fmt.Errorf("stage %s/%s: %w", field.SourceFileID, field.FieldKey, err)
	}
	return staged, nil
}

// Settle records the terminal outcome of a staged field. The staged value
// itself is left as received.
func (s *Sink) Settle(ctx context.Context, id int64, status domain.StagingStatus, reason string) error {
	if !slices.Contains([]domain.StagingStatus{domain.StagingLoaded, domain.StagingUnrecognized, domain.StagingFailed}, status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.SetStagedStatus(id, status, reason)
	})
	if err != nil {
		return fmt.Errorf("settle staged field %d: %w", id, err)
	}
	return nil
}

// Audit appends a failure entry. Status and action are forced to failed and
// none since committed writes are audited by the warehouse itself.
func (s *Sink) Audit(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	entry.Status = domain.AuditFailed
	entry.Action = domain.ActionNone
	if entry.Actor == "" {
		entry.Actor = s.actor
	}
	var out domain.AuditEntry
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		out, err = tx.AppendAudit(entry)
		return err
	})
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit %s: %w", entry.ErrorKind, err)
	}
	s.logger.Debug("failure audited",
		slog.String(logging.KeyBatch, entry.BatchID),
		slog.String(logging.KeyEntity, entry.Entity),
		slog.String("error_kind", entry.ErrorKind))
	return out, nil
}

// Trail returns the activity log entries of a batch in append order.
func (s *Sink) Trail(ctx context.Context, batchID string) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		entries, err := v.ListAudit()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.BatchID == batchID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// Staged returns the staged fields of a batch in arrival order.
func (s *Sink) Staged(ctx context.Context, batchID string) ([]domain.StagedField, error) {
	var out []domain.StagedField
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		fields, err := v.ListStaged()
		if err != nil {
			return err
		}
		for _, f := range fields {
			if f.BatchID == batchID {
				out = append(out, f)
			}
		}
		return nil
	})
	return out, err
}

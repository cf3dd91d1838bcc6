package sink_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonycore/internal/infra/persistence/memory"
	"harmonycore/internal/sink"
	"harmonycore/pkg/domain"
)

func TestStageAndSettle(t *testing.T) {
	ctx := context.Background()
	s := sink.New(memory.NewStore(nil))

	staged, err := s.Stage(ctx, "b1", domain.RawField{SourceFileID: "f1", FieldKey: "gene", Value: " ENSG00000139618 "})
	require.NoError(t, err)
	assert.NotZero(t, staged.ID)
	assert.Equal(t, domain.StagingReceived, staged.Status)

	require.NoError(t, s.Settle(ctx, staged.ID, domain.StagingFailed, "EnrichmentFailed"))

	fields, err := s.Staged(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, " ENSG00000139618 ", fields[0].Value, "raw value kept verbatim")
	assert.Equal(t, domain.StagingFailed, fields[0].Status)
	assert.Equal(t, "EnrichmentFailed", fields[0].Reason)

	other, err := s.Staged(ctx, "b2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSettleRejectsNonTerminalStatus(t *testing.T) {
	s := sink.New(memory.NewStore(nil))
	err := s.Settle(context.Background(), 1, domain.StagingReceived, "")
	assert.ErrorIs(t, err, sink.ErrInvalidStatus)
}

func TestSettleUnknownField(t *testing.T) {
	s := sink.New(memory.NewStore(nil))
	err := s.Settle(context.Background(), 42, domain.StagingLoaded, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuditForcesFailureShape(t *testing.T) {
	ctx := context.Background()
	s := sink.New(memory.NewStore(nil), sink.WithActor("curator"))
	entry, err := s.Audit(ctx, domain.AuditEntry{
		BatchID:   "b1",
		Entity:    "gene",
		TableName: "Genes",
		Action:    domain.ActionInsert,
		Status:    domain.AuditCommitted,
		ErrorKind: "EnrichmentFailed",
		Detail:    "ensembl unavailable",
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, domain.AuditFailed, entry.Status)
	assert.Equal(t, domain.ActionNone, entry.Action)
	assert.Equal(t, "curator", entry.Actor)

	_, err = s.Audit(ctx, domain.AuditEntry{BatchID: "b2", ErrorKind: "InvalidValue"})
	require.NoError(t, err)

	trail, err := s.Trail(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "EnrichmentFailed", trail[0].ErrorKind)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := sink.New(memory.NewStore(nil))
	_, err := s.Stage(ctx, "b", domain.RawField{FieldKey: "k", Value: "v"})
	assert.ErrorIs(t, err, context.Canceled)
}

// Package storetest holds the behavioural contract every warehouse
// persistence backend must satisfy.
package storetest

import (
	"context"
	"errors"
	"testing"

	"harmonycore/internal/entitymodel"
	"harmonycore/pkg/domain"
)

// Opener returns a fresh, empty store for the default schema.
type Opener func(t *testing.T) domain.PersistentStore

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, open(t)) })
	t.Run("DuplicateNaturalKey", func(t *testing.T) { testDuplicate(t, open(t)) })
	t.Run("ForeignKeyEnforced", func(t *testing.T) { testForeignKey(t, open(t)) })
	t.Run("UpdateMergesColumns", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("AuditAndStaging", func(t *testing.T) { testTraces(t, open(t)) })
	t.Run("UnknownTable", func(t *testing.T) { testUnknownTable(t, open(t)) })
}

func insertTaxon(t *testing.T, store domain.PersistentStore, id int64) domain.Row {
	t.Helper()
	var row domain.Row
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		row, err = tx.InsertRow(entitymodel.TableTaxa, domain.Record{"taxon_id": id, "kingdom": "Bacteria"})
		return err
	}); err != nil {
		t.Fatalf("insert taxon: %v", err)
	}
	return row
}

func testInsertAndFind(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	taxon := insertTaxon(t, store, 816)
	if taxon.ID == 0 {
		t.Fatalf("expected surrogate id")
	}
	res, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertRow(entitymodel.TableGenes, domain.Record{
			"gene_accession":   "ENSG00000139618",
			"species_taxon_id": "816",
			"gene_length_bp":   84193.0,
			"species_key":      taxon.ID,
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert gene: %v", err)
	}
	if res.Writes() != 1 || res.Changes[0].Action != domain.ActionInsert {
		t.Fatalf("unexpected changes: %+v", res.Changes)
	}
	err = store.View(ctx, func(v domain.TransactionView) error {
		row, ok, err := v.FindByNaturalKey(entitymodel.TableGenes,
			[]string{"gene_accession", "species_taxon_id"}, []any{"ENSG00000139618", 816})
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("gene not found by natural key")
		}
		if row.Values["species_taxon_id"] != int64(816) || row.Values["gene_length_bp"] != int64(84193) {
			t.Fatalf("values not coerced: %#v", row.Values)
		}
		if row.Values["species_key"] != taxon.ID {
			t.Fatalf("foreign key not stored: %#v", row.Values)
		}
		if _, ok := row.Values["gene_name"]; ok {
			t.Fatalf("null column surfaced: %#v", row.Values)
		}
		got, ok, err := v.GetRow(entitymodel.TableGenes, row.ID)
		if err != nil || !ok || got.Values["gene_accession"] != "ENSG00000139618" {
			t.Fatalf("get row: %v %v %#v", err, ok, got)
		}
		if _, ok, _ := v.FindByNaturalKey(entitymodel.TableGenes, []string{"gene_accession", "species_taxon_id"}, []any{"ENSG00000139618", 10090}); ok {
			t.Fatalf("matched wrong species")
		}
		rows, err := v.ListRows(entitymodel.TableTaxa)
		if err != nil || len(rows) != 1 {
			t.Fatalf("list taxa: %v %d", err, len(rows))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testDuplicate(t *testing.T, store domain.PersistentStore) {
	insertTaxon(t, store, 9606)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertRow(entitymodel.TableTaxa, domain.Record{"taxon_id": 9606})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func testForeignKey(t *testing.T, store domain.PersistentStore) {
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertRow(entitymodel.TableMicrobes, domain.Record{"taxon_id": 816, "taxon_key": int64(4242)})
		return err
	})
	if !errors.Is(err, domain.ErrForeignKey) {
		t.Fatalf("expected ErrForeignKey, got %v", err)
	}
}

func testUpdate(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	row := insertTaxon(t, store, 562)
	res, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateRow(entitymodel.TableTaxa, row.ID, domain.Record{"rank": "species"})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Writes() != 1 || res.Changes[0].Before["rank"] != nil || res.Changes[0].After["rank"] != "species" {
		t.Fatalf("unexpected change: %+v", res.Changes)
	}
	err = store.View(ctx, func(v domain.TransactionView) error {
		got, ok, err := v.GetRow(entitymodel.TableTaxa, row.ID)
		if err != nil || !ok {
			t.Fatalf("get: %v %v", err, ok)
		}
		if got.Values["kingdom"] != "Bacteria" || got.Values["rank"] != "species" {
			t.Fatalf("update lost values: %#v", got.Values)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateRow(entitymodel.TableTaxa, row.ID+1000, domain.Record{"rank": "genus"})
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testRollback(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.InsertRow(entitymodel.TableStudies, domain.Record{"study_id": "GSE1"}); err != nil {
			return err
		}
		if _, err := tx.AppendAudit(domain.AuditEntry{BatchID: "b", Actor: "a", Entity: "study", TableName: entitymodel.TableStudies, Action: domain.ActionInsert, Status: domain.AuditCommitted}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	err = store.View(ctx, func(v domain.TransactionView) error {
		rows, err := v.ListRows(entitymodel.TableStudies)
		if err != nil {
			return err
		}
		audit, err := v.ListAudit()
		if err != nil {
			return err
		}
		if len(rows) != 0 || len(audit) != 0 {
			t.Fatalf("rolled back writes are visible: %d rows, %d audit", len(rows), len(audit))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testTraces(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	var staged domain.StagedField
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		staged, err = tx.AppendStaged(domain.StagedField{BatchID: "batch-1", SourceFileID: "f1", FieldKey: "gene", Value: "ENSG00000139618"})
		if err != nil {
			return err
		}
		_, err = tx.AppendAudit(domain.AuditEntry{
			BatchID: "batch-1", Actor: "tester", Entity: "gene", TableName: entitymodel.TableGenes,
			Action: domain.ActionNone, Status: domain.AuditFailed, ErrorKind: "EnrichmentFailed",
		})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if staged.ID == 0 || staged.Status != domain.StagingReceived {
		t.Fatalf("unexpected staged field: %+v", staged)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.SetStagedStatus(staged.ID, domain.StagingFailed, "EnrichmentFailed")
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.SetStagedStatus(staged.ID+99, domain.StagingLoaded, "")
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err = store.View(ctx, func(v domain.TransactionView) error {
		fields, err := v.ListStaged()
		if err != nil {
			return err
		}
		if len(fields) != 1 || fields[0].Status != domain.StagingFailed || fields[0].Value != "ENSG00000139618" || fields[0].Reason != "EnrichmentFailed" {
			t.Fatalf("unexpected staged fields: %+v", fields)
		}
		audit, err := v.ListAudit()
		if err != nil {
			return err
		}
		if len(audit) != 1 || audit[0].Status != domain.AuditFailed || audit[0].ErrorKind != "EnrichmentFailed" || audit[0].ID == 0 {
			t.Fatalf("unexpected audit: %+v", audit)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testUnknownTable(t *testing.T, store domain.PersistentStore) {
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		_, err := v.ListRows("Galaxies")
		return err
	})
	if !errors.Is(err, domain.ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

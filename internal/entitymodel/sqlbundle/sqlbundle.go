// Package sqlbundle renders warehouse DDL for the supported SQL dialects.
package sqlbundle

import (
	"bufio"
	"fmt"
	"strings"

	"harmonycore/internal/entitymodel"
)

// Bookkeeping tables that live beside the warehouse tables.
const (
	StagingTable = "staging_kv"
	AuditTable   = "ActivityLog"
)

type dialect struct {
	name  string
	id    string
	key   string
	types map[entitymodel.ColumnType]string
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		id:   "INTEGER PRIMARY KEY AUTOINCREMENT",
		key:  "INTEGER",
		types: map[entitymodel.ColumnType]string{
			entitymodel.TypeText:    "TEXT",
			entitymodel.TypeInteger: "INTEGER",
			entitymodel.TypeReal:    "REAL",
		},
	}
	postgresDialect = dialect{
		name: "postgres",
		id:   "BIGSERIAL PRIMARY KEY",
		key:  "BIGINT",
		types: map[entitymodel.ColumnType]string{
			entitymodel.TypeText:    "TEXT",
			entitymodel.TypeInteger: "BIGINT",
			entitymodel.TypeReal:    "DOUBLE PRECISION",
		},
	}
)

// SQLite returns the SQLite DDL for the schema.
func SQLite(s *entitymodel.Schema) (string, error) {
	return render(s, sqliteDialect)
}

// Postgres returns the Postgres DDL for the schema.
func Postgres(s *entitymodel.Schema) (string, error) {
	return render(s, postgresDialect)
}

// Quote returns a double-quoted SQL identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteList(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = Quote(id)
	}
	return strings.Join(quoted, ", ")
}

func render(s *entitymodel.Schema, d dialect) (string, error) {
	order, err := s.DependencyOrder()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "-- harmonycore warehouse schema (%s)\n", d.name)
	for _, name := range order {
		t, _ := s.Table(name)
		lines := []string{Quote("id") + " " + d.id}
		for _, c := range t.Columns {
			line := Quote(c.Name) + " " + d.types[c.Type]
			if !c.Nullable {
				line += " NOT NULL"
			}
			lines = append(lines, line)
		}
		for _, fk := range t.ForeignKeys {
			lines = append(lines, fmt.Sprintf("%s %s NOT NULL REFERENCES %s (%s) ON DELETE %s",
				Quote(fk.Name), d.key, Quote(fk.RefTable), Quote("id"), fk.OnDelete))
		}
		lines = append(lines,
			Quote("created_at")+" TEXT NOT NULL",
			Quote("updated_at")+" TEXT NOT NULL",
			"UNIQUE ("+quoteList(t.NaturalKeyColumns())+")",
		)
		b.WriteString("\n")
		writeTable(&b, name, lines)
		for _, fk := range t.ForeignKeys {
			writeIndex(&b, name, fk.Name)
		}
	}

	b.WriteString("\n")
	writeTable(&b, StagingTable, []string{
		Quote("id") + " " + d.id,
		Quote("batch_id") + " TEXT NOT NULL",
		Quote("source_file_id") + " TEXT NOT NULL",
		Quote("field_key") + " TEXT NOT NULL",
		Quote("value") + " TEXT NOT NULL",
		Quote("status") + " TEXT NOT NULL",
		Quote("reason") + " TEXT",
		Quote("created_at") + " TEXT NOT NULL",
		Quote("updated_at") + " TEXT NOT NULL",
	})
	writeIndex(&b, StagingTable, "batch_id")

	b.WriteString("\n")
	writeTable(&b, AuditTable, []string{
		Quote("id") + " " + d.id,
		Quote("batch_id") + " TEXT NOT NULL",
		Quote("actor") + " TEXT NOT NULL",
		Quote("entity") + " TEXT NOT NULL",
		Quote("table_name") + " TEXT NOT NULL",
		Quote("action") + " TEXT NOT NULL",
		Quote("status") + " TEXT NOT NULL",
		Quote("error_kind") + " TEXT",
		Quote("natural_key") + " TEXT",
		Quote("detail") + " TEXT",
		Quote("created_at") + " TEXT NOT NULL",
	})
	writeIndex(&b, AuditTable, "batch_id")
	return b.String(), nil
}

func writeTable(b *strings.Builder, name string, lines []string) {
	fmt.Fprintf(b, "CREATE TABLE IF NOT EXISTS %s (\n    %s\n);\n", Quote(name), strings.Join(lines, ",\n    "))
}

func writeIndex(b *strings.Builder, table, column string) {
	fmt.Fprintf(b, "CREATE INDEX IF NOT EXISTS %s ON %s (%s);\n", Quote("idx_"+table+"_"+column), Quote(table), Quote(column))
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}

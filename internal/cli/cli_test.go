package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "validate", "classify", "schema", "archive"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "--format", "xml", "schema")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateBuiltIn(t *testing.T) {
	out, err := execute(t, "", "validate", "--format", "json")
	require.NoError(t, err)
	var res ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, "built-in", res.Source)
	assert.Equal(t, 11, res.Rules)
}

func TestValidateReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
rules:
  - entity: gene
    pattern: '^ENSG\d+$'
    transforms: [strip_version, teleport]
    target_table: Genes
    target_columns: [gene_accession, species_taxon_id]
  - entity: planet
    pattern: '^P\d+$'
    target_table: Planets
    target_columns: [name]
`), 0o600))
	out, err := execute(t, "", "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
	kinds := make([]string, 0, len(res.Problems))
	for _, p := range res.Problems {
		kinds = append(kinds, p.Kind)
	}
	assert.Contains(t, kinds, "UnknownTransform")
	assert.Contains(t, kinds, "UnknownTable")
}

func TestClassify(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "classify", "--key", "host_organism", "NCBITaxon:9606")
	require.NoError(t, err)
	var matches []MatchView
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 2)
	assert.Equal(t, "taxon", matches[0].Entity)
	assert.Equal(t, "9606", matches[0].Seed)
	assert.Equal(t, "microbe", matches[1].Entity)

	out, err = execute(t, "", "classify", "free text")
	require.NoError(t, err)
	assert.Equal(t, "unrecognized\n", out)
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "", "schema", "--dialect", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "Genes"`)

	_, err = execute(t, "", "schema", "--dialect", "oracle")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

const fixtureYAML = `
gene:
  ENSG00000139618:
    gene_name: BRCA2
    species_taxon_id: 9606
`

func TestRunLoadsBatchAndArchives(t *testing.T) {
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixtures, []byte(fixtureYAML), 0o600))
	blobRoot := filepath.Join(dir, "blobs")
	t.Setenv("HARMONYCORE_BLOB_FS_ROOT", blobRoot)
	t.Setenv("HARMONYCORE_RETRY_BACKOFF", "0s")

	input := "source_file_id\tfield_key\tvalue\n" +
		"f1\tgene\tENSG00000139618.15\n" +
		"f1\tnote\tnothing to see\n" +
		"f1\tgene\tENSG00000000001\n"
	out, err := execute(t, input, "--format", "json", "--log-level", "error",
		"run", "--storage", "memory", "--fixtures", fixtures, "--archive", "--workers", "2")
	require.NoError(t, err)

	var report struct {
		BatchID      string `json:"batch_id"`
		Fields       int    `json:"fields"`
		Unrecognized int    `json:"unrecognized"`
		Entities     map[string]struct {
			Written int `json:"written"`
			Failed  int `json:"failed"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Fields)
	assert.Equal(t, 1, report.Unrecognized)
	assert.Equal(t, 1, report.Entities["gene"].Written)
	assert.Equal(t, 1, report.Entities["gene"].Failed)

	for _, name := range []string{"fields.tsv", "report.json"} {
		_, err := os.Stat(filepath.Join(blobRoot, "runs", report.BatchID, name))
		assert.NoError(t, err, name)
	}

	out, err = execute(t, "", "--format", "json", "archive", "show", report.BatchID)
	require.NoError(t, err)
	var view ArchiveView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, report.BatchID, view.BatchID)
	assert.Equal(t, 3, view.Fields)
	require.Len(t, view.Objects, 2)
	assert.Equal(t, "runs/"+report.BatchID+"/fields.tsv", view.Objects[0].Key)
	require.NotNil(t, view.Report)
	assert.Equal(t, 1, view.Report.Entities["gene"].Written)

	out, err = execute(t, "", "archive", "show", report.BatchID)
	require.NoError(t, err)
	assert.Contains(t, out, "report.json")
	assert.Contains(t, out, "unrecognized: 1")

	_, err = execute(t, "", "archive", "show", "no-such-batch")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRunTextReport(t *testing.T) {
	out, err := execute(t, "f1\tnote\tnothing\n", "--log-level", "error", "run", "--storage", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "ENTITY")
	assert.Contains(t, out, "unrecognized: 1")
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	_, err := execute(t, "", "run", "--storage", "cassandra")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	t.Setenv("HARMONYCORE_WORKERS", "many")
	_, err = execute(t, "", "run", "--storage", "memory")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

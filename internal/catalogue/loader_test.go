package catalogue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonycore/internal/entitymodel"
)

type nameSet map[string]bool

func (s nameSet) Has(name string) bool { return s[name] }

var testTransforms = nameSet{"strip_version": true, "fetch_gene_metadata": true, "taxon_id": true}

const geneCatalogue = `
version: "2"
actor: curator
rules:
  - entity: gene
    pattern: '^ENS[A-Z]*G\d{11}(?:\.\d+)?$'
    transforms: [strip_version, fetch_gene_metadata]
    target_table: Genes
    target_columns: [gene_accession, species_taxon_id, gene_name]
  - entity: taxon
    pattern: '^NCBITaxon:(?P<id>\d+)$'
    key_pattern: '^organism'
    transforms: [taxon_id]
    target_table: Taxa
    target_columns: [taxon_id]
`

func TestParseYAML(t *testing.T) {
	set, err := Parse([]byte(geneCatalogue), FormatYAML, entitymodel.Default(), testTransforms)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, "2", set.Version())
	assert.Equal(t, "curator", set.Actor())

	gene, ok := set.Rule("gene")
	require.True(t, ok)
	assert.Equal(t, entitymodel.TableGenes, gene.Table.Name)
	assert.Equal(t, []string{"strip_version", "fetch_gene_metadata"}, gene.Transforms)
	assert.True(t, gene.Pattern.MatchString("ENSG00000139618.15"))
	assert.Nil(t, gene.KeyPattern)

	taxon, ok := set.Rule("taxon")
	require.True(t, ok)
	require.NotNil(t, taxon.KeyPattern)
	assert.Equal(t, 1, taxon.Index)
}

func TestRuleSetReturnsCopies(t *testing.T) {
	set, err := Parse([]byte(geneCatalogue), FormatYAML, entitymodel.Default(), testTransforms)
	require.NoError(t, err)

	rules := set.Rules()
	rules[0].TargetColumns[0] = "mutated"
	rules[0].Transforms = nil

	again, _ := set.Rule("gene")
	assert.Equal(t, "gene_accession", again.TargetColumns[0])
	assert.Len(t, again.Transforms, 2)
}

func TestParseCUE(t *testing.T) {
	src := `
version: "1"
rules: [{
	entity:         "gene"
	pattern:        "^ENSG\\d{11}$"
	transforms:     ["strip_version"]
	target_table:   "Genes"
	target_columns: ["gene_accession", "species_taxon_id"]
}]
`
	set, err := Parse([]byte(src), FormatCUE, entitymodel.Default(), testTransforms)
	require.NoError(t, err)
	rule, ok := set.Rule("gene")
	require.True(t, ok)
	assert.True(t, rule.Pattern.MatchString("ENSG00000139618"))
}

func TestLoadPicksFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yml")
	require.NoError(t, os.WriteFile(path, []byte(geneCatalogue), 0o600))

	set, err := Load(path, entitymodel.Default(), testTransforms)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	_, err = Load(filepath.Join(dir, "catalogue.toml"), entitymodel.Default(), testTransforms)
	require.Error(t, err)
	assert.True(t, IsCatalogueError(err))
}

func TestCompileCollectsEveryProblem(t *testing.T) {
	src := `
rules:
  - entity: gene
    pattern: '(unclosed'
    transforms: [strip_version, no_such_step]
    target_table: Genes
    target_columns: [gene_accession, gene_accession, wingspan]
  - entity: gene
    pattern: '^x$'
    target_table: Galaxies
    target_columns: []
  - entity: ''
    pattern: ''
    target_table: Taxa
    target_columns: [taxon_id]
`
	set, err := Parse([]byte(src), FormatYAML, entitymodel.Default(), testTransforms)
	require.Error(t, err)
	assert.Nil(t, set)

	kinds := map[ErrorKind]int{}
	for _, p := range Problems(err) {
		kinds[p.Kind]++
	}
	assert.Equal(t, map[ErrorKind]int{
		KindMalformedPattern: 2,
		KindUnknownTransform: 1,
		KindDuplicateColumn:  1,
		KindUnknownColumn:    1,
		KindDuplicateEntity:  1,
		KindUnknownTable:     1,
		KindMissingColumns:   1,
		KindMalformed:        1,
	}, kinds)
}

func TestMalformedDocument(t *testing.T) {
	_, err := Parse([]byte("rules: [unterminated"), FormatYAML, entitymodel.Default(), testTransforms)
	require.Error(t, err)
	problems := Problems(err)
	require.Len(t, problems, 1)
	assert.Equal(t, KindMalformed, problems[0].Kind)
	assert.Equal(t, -1, problems[0].Index)

	_, err = Parse([]byte("version: \"1\"\n"), FormatYAML, entitymodel.Default(), testTransforms)
	require.Error(t, err)
	assert.Equal(t, KindMalformed, Problems(err)[0].Kind)
}

func TestCompileRequiresCollaborators(t *testing.T) {
	doc := &Document{}
	_, err := Compile(doc, nil, testTransforms)
	assert.Error(t, err)
	_, err = Compile(doc, entitymodel.Default(), nil)
	assert.Error(t, err)
}

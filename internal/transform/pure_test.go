package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonycore/pkg/domain"
)

func TestStripVersion(t *testing.T) {
	assert.Equal(t, "ENSG00000139618", StripVersion("ENSG00000139618.15"))
	assert.Equal(t, "ENSG00000139618", StripVersion(" ENSG00000139618 "))
}

func TestCanonicalIRI(t *testing.T) {
	cases := map[string]string{
		"CL:0000057":      "http://purl.obolibrary.org/obo/CL_0000057",
		"CHEBI_16236":     "http://purl.obolibrary.org/obo/CHEBI_16236",
		"EFO:0000001":     "http://www.ebi.ac.uk/efo/EFO_0000001",
		"HsapDv:0000087":  "http://purl.obolibrary.org/obo/HsapDv_0000087",
		"FOO:1":           "FOO:1",
		"https://x.org/1": "https://x.org/1",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalIRI(in), in)
	}
}

func TestCanonicalIRIColumns(t *testing.T) {
	in := domain.Record{
		"cell_type_iri": "CL:0000236",
		"tissue_iri":    "http://purl.obolibrary.org/obo/UBERON_0000178",
		"study_id":      "GSE_1",
		"stimulus_iri":  "NOVEL:1",
	}
	out := CanonicalIRIColumns(in)
	assert.Equal(t, "http://purl.obolibrary.org/obo/CL_0000236", out["cell_type_iri"])
	assert.Equal(t, "http://purl.obolibrary.org/obo/UBERON_0000178", out["tissue_iri"])
	assert.Equal(t, "GSE_1", out["study_id"])
	assert.Equal(t, "NOVEL:1", out["stimulus_iri"])
	assert.Equal(t, "CL:0000236", in["cell_type_iri"], "input is not mutated")
}

func TestTaxonID(t *testing.T) {
	for _, in := range []string{"NCBITaxon:816", "NCBITaxon_816", "http://purl.obolibrary.org/obo/NCBITaxon_816", "816"} {
		id, err := TaxonID(in)
		require.NoError(t, err, in)
		assert.Equal(t, int64(816), id)
	}
	_, err := TaxonID("Bacteroides")
	assert.Error(t, err)
}

func TestLowercaseASCII(t *testing.T) {
	out, ok := LowercaseASCII("β-Alanine")
	require.True(t, ok)
	assert.Equal(t, "beta-alanine", out)

	out, ok = LowercaseASCII("  Café   Crème – 5 µM ")
	require.True(t, ok)
	assert.Equal(t, "cafe creme - 5 um", out)

	_, ok = LowercaseASCII("   ")
	assert.False(t, ok)
}

func TestExtractSampleID(t *testing.T) {
	id, err := ExtractSampleID("sample=SAMP0000A1B2;rep=1")
	require.NoError(t, err)
	assert.Equal(t, "SAMP0000A1B2", id)
	_, err = ExtractSampleID("SAMP12")
	assert.Error(t, err)
}

func TestSplitCommas(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitCommas(" a, ,b,c ,"))
	assert.Nil(t, SplitCommas(" , "))
}

func TestParseSampleMicrobe(t *testing.T) {
	rec, err := ParseSampleMicrobe("SM,SAMP0000A1B2,NCBITaxon:816,0.25,Literature")
	require.NoError(t, err)
	assert.Equal(t, "SAMP0000A1B2", rec["sample_id"])
	assert.Equal(t, int64(816), rec["microbe_taxon_id"])
	assert.Equal(t, 0.25, rec["rel_abundance"])
	assert.Equal(t, "literature", rec["evidence"])

	_, err = ParseSampleMicrobe("SM,SAMP0000A1B2,NCBITaxon:816,0.25,hearsay")
	assert.ErrorContains(t, err, "evidence")
	_, err = ParseSampleMicrobe("SM,SAMP0000A1B2,NCBITaxon:816")
	assert.ErrorContains(t, err, "expected 5")
}

func TestParseSampleStimulus(t *testing.T) {
	rec, err := ParseSampleStimulus("SS,SAMP0000A1B2,CHEBI:16236,24,IL6")
	require.NoError(t, err)
	assert.Equal(t, "http://purl.obolibrary.org/obo/CHEBI_16236", rec["stimulus_iri"])
	assert.Equal(t, 24.0, rec["exposure_time_hr"])
	assert.Equal(t, "IL6", rec["response_marker"])
}

func TestParseMicrobeStimulus(t *testing.T) {
	rec, err := ParseMicrobeStimulus("NCBITaxon:816,CHEBI:16236,0.8,mgnify")
	require.NoError(t, err)
	assert.Equal(t, int64(816), rec["microbe_taxon_id"])
	assert.Equal(t, 0.8, rec["interaction_score"])
}

func TestParseExpressionStat(t *testing.T) {
	rec, err := ParseExpressionStat("DE:SAMP0000A1B2,ENSG00000139618.15,1.5,0.001,200.5,1234,up")
	require.NoError(t, err)
	assert.Equal(t, "SAMP0000A1B2", rec["sample_id"])
	assert.Equal(t, "ENSG00000139618", rec["gene_accession"])
	assert.Equal(t, int64(9606), rec["species_taxon_id"])
	assert.Equal(t, int64(1234), rec["raw_count"])
	assert.Equal(t, "up", rec["significance"])

	rec, err = ParseExpressionStat("DE:SAMP0000A1B2,ENSMUSG00000017167,,,,,,NCBITaxon:10090")
	require.NoError(t, err)
	assert.Equal(t, int64(10090), rec["species_taxon_id"])
	assert.Nil(t, rec["log2_fc"])

	_, err = ParseExpressionStat("DE:SAMP0000A1B2,ENSG00000139618,x,0.001,200.5,1234,up")
	assert.ErrorContains(t, err, "log2_fc")
}

package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonycore/internal/catalogue"
	"harmonycore/internal/classify"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/transform"
	"harmonycore/pkg/domain"
)

func defaultRules(t *testing.T) *catalogue.RuleSet {
	t.Helper()
	rules, err := catalogue.LoadDefault(entitymodel.Default(), transform.NewRegistry())
	require.NoError(t, err)
	return rules
}

func entities(ms []classify.Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Rule.Entity
	}
	return out
}

func TestClassifyDefaultCatalogue(t *testing.T) {
	rules := defaultRules(t)
	cases := []struct {
		key, value, entity, seed string
	}{
		{"gene", "ENSG00000139618.15", "gene", "ENSG00000139618.15"},
		{"microbe", "NCBITaxon:816", "microbe", "816"},
		{"organism", "NCBITaxon_9606", "taxon", "9606"},
		{"treatment", "CHEBI:16236", "stimulus", "CHEBI:16236"},
		{"cell_type", "CL:0000057", "ontology_term", "CL:0000057"},
		{"study", "gse12345", "study", "gse12345"},
		{"sample", "biosample SAMP0000A1B2", "sample", "SAMP0000A1B2"},
		{"link", "SM,SAMP0000A1B2,NCBITaxon:816,0.2,mgnify", "sample_microbe", "SM,SAMP0000A1B2,NCBITaxon:816,0.2,mgnify"},
		{"link", "SS,SAMP0000A1B2,CHEBI:16236,24,IL6", "sample_stimulus", "SS,SAMP0000A1B2,CHEBI:16236,24,IL6"},
		{"link", "NCBITaxon:816,CHEBI:16236,0.8,mgnify", "microbe_stimulus", "NCBITaxon:816,CHEBI:16236,0.8,mgnify"},
		{"de", "DE:SAMP0000A1B2,ENSG00000139618,1.5,0.01,20,10,up", "expression_stat", "DE:SAMP0000A1B2,ENSG00000139618,1.5,0.01,20,10,up"},
	}
	for _, tc := range cases {
		t.Run(tc.entity, func(t *testing.T) {
			m, ok := classify.Best(domain.RawField{FieldKey: tc.key, Value: tc.value}, rules)
			require.True(t, ok)
			assert.Equal(t, tc.entity, m.Rule.Entity)
			assert.Equal(t, tc.seed, m.Seed)
		})
	}
}

func TestLongestMatchWins(t *testing.T) {
	rules := defaultRules(t)
	ms := classify.Classify(domain.RawField{Value: "SM,SAMP0000A1B2,NCBITaxon:816,0.2,mgnify"}, rules)
	require.Len(t, ms, 2)
	assert.Equal(t, []string{"sample_microbe", "sample"}, entities(ms))
	assert.Greater(t, ms[0].Span, ms[1].Span)
}

func TestEqualSpanKeepsDeclarationOrder(t *testing.T) {
	rules := defaultRules(t)
	ms := classify.Classify(domain.RawField{FieldKey: "host_organism", Value: "NCBITaxon:816"}, rules)
	assert.Equal(t, []string{"taxon", "microbe"}, entities(ms))
	assert.Equal(t, ms[0].Span, ms[1].Span)

	ms = classify.Classify(domain.RawField{FieldKey: "abundance", Value: "NCBITaxon:816"}, rules)
	assert.Equal(t, []string{"microbe"}, entities(ms))
}

func TestClassifyIsDeterministic(t *testing.T) {
	rules := defaultRules(t)
	field := domain.RawField{FieldKey: "species", Value: "NCBITaxon:816"}
	first := entities(classify.Classify(field, rules))
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, entities(classify.Classify(field, rules)))
	}
}

func TestNormalisesBeforeMatching(t *testing.T) {
	rules := defaultRules(t)
	m, ok := classify.Best(domain.RawField{Value: "  ENSG00000139618\t"}, rules)
	require.True(t, ok)
	assert.Equal(t, "gene", m.Rule.Entity)
	assert.Equal(t, "ENSG00000139618", m.Seed)

	assert.Equal(t, "\u00e9", classify.Normalize("e\u0301"))
}

func TestUnrecognised(t *testing.T) {
	rules := defaultRules(t)
	assert.Empty(t, classify.Classify(domain.RawField{Value: "free text about mice"}, rules))
	assert.Empty(t, classify.Classify(domain.RawField{Value: "   "}, rules))
	_, ok := classify.Best(domain.RawField{Value: "n/a"}, rules)
	assert.False(t, ok)
	assert.Empty(t, classify.Classify(domain.RawField{Value: "ENSG00000139618"}, nil))
}

func TestGroupsExposed(t *testing.T) {
	rules := defaultRules(t)
	m, ok := classify.Best(domain.RawField{Value: "NCBITaxon_562"}, rules)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"id": "562"}, m.Groups)
	assert.Equal(t, "NCBITaxon_562", m.Text)
}

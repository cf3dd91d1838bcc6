package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonycore/pkg/domain"
)

const fixtureYAML = `
gene:
  ENSG00000139618:
    gene_name: BRCA2
    species_taxon_id: 9606
taxon:
  816:
    kingdom: Bacteria
    gc_content_pct: 43.2
`

func TestParseFixtures(t *testing.T) {
	dir, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)

	gene, err := dir.Provider(FamilyGene)
	require.NoError(t, err)
	rec, err := gene.Lookup(context.Background(), "ENSG00000139618")
	require.NoError(t, err)
	assert.Equal(t, "BRCA2", rec["gene_name"])
	assert.EqualValues(t, 9606, rec["species_taxon_id"])

	taxon, err := dir.Provider(FamilyTaxon)
	require.NoError(t, err)
	rec, err = taxon.Lookup(context.Background(), "816")
	require.NoError(t, err)
	assert.Equal(t, "Bacteria", rec["kingdom"])

	_, err = dir.Provider(FamilyStudy)
	assert.Error(t, err)
}

func TestParseFixturesRejectsUnknownFamily(t *testing.T) {
	_, err := ParseFixtures([]byte("planet:\n  earth: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planet")
}

func TestStaticNotFound(t *testing.T) {
	s := NewStatic(FamilyStudy, nil)
	_, err := s.Lookup(context.Background(), "E-MTAB-1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnavailable(err))

	var le *LookupError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, FamilyStudy, le.Family)
	assert.Equal(t, "E-MTAB-1", le.ID)
}

func TestStaticReturnsCopies(t *testing.T) {
	s := NewStatic(FamilyGene, map[string]domain.Record{"G": {"gene_name": "A"}})
	rec, err := s.Lookup(context.Background(), "G")
	require.NoError(t, err)
	rec["gene_name"] = "mutated"
	again, err := s.Lookup(context.Background(), "G")
	require.NoError(t, err)
	assert.Equal(t, "A", again["gene_name"])
}

func TestCachedOnlyCachesSuccess(t *testing.T) {
	var calls atomic.Int32
	flaky := ProviderFunc(func(_ context.Context, id string) (domain.Record, error) {
		n := calls.Add(1)
		if n == 1 {
			return nil, &LookupError{Family: FamilyGene, ID: id, Err: ErrUnavailable}
		}
		return domain.Record{"gene_name": fmt.Sprintf("call-%d", n)}, nil
	})
	c, err := NewCached(flaky, 8)
	require.NoError(t, err)

	_, err = c.Lookup(context.Background(), "G")
	require.True(t, IsUnavailable(err))

	first, err := c.Lookup(context.Background(), "G")
	require.NoError(t, err)
	second, err := c.Lookup(context.Background(), "G")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 2, calls.Load())
}

func TestNewCachedRejectsBadSize(t *testing.T) {
	_, err := NewCached(NewStatic(FamilyGene, nil), 0)
	assert.Error(t, err)
}

func TestCacheDirectory(t *testing.T) {
	dir := Directory{FamilyGene: NewStatic(FamilyGene, map[string]domain.Record{"G": {"gene_name": "A"}})}
	cached, err := CacheDirectory(dir, 4)
	require.NoError(t, err)
	p, err := cached.Provider(FamilyGene)
	require.NoError(t, err)
	_, ok := p.(*Cached)
	assert.True(t, ok)
}

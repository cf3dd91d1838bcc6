package catalogue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"harmonycore/internal/catalogue"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/transform"
)

func TestDefaultCatalogueCompiles(t *testing.T) {
	set, err := catalogue.LoadDefault(entitymodel.Default(), transform.NewRegistry())
	require.NoError(t, err)
	require.Equal(t, 11, set.Len())
	require.Equal(t, "harmonize", set.Actor())

	covered := map[string]bool{}
	for _, rule := range set.Rules() {
		covered[rule.Table.Name] = true
		for _, col := range rule.Table.Required() {
			require.Contains(t, rule.TargetColumns, col, "rule %s", rule.Entity)
		}
	}
	for _, table := range entitymodel.Default().Tables() {
		require.True(t, covered[table.Name], "no rule targets %s", table.Name)
	}
}

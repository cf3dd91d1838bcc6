package etl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonycore/pkg/domain"
)

func TestReadFields(t *testing.T) {
	in := "source_file_id\tfield_key\tvalue\n" +
		"f1\tgene\tENSG00000139618.15\n" +
		"f1\tlink\tSM,SAMP0000AAAA,NCBITaxon:816,0.12,mgnify\n" +
		"f2\tnote\tsays \"hi\"\n"
	fields, err := ReadFields(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, domain.RawField{SourceFileID: "f1", FieldKey: "gene", Value: "ENSG00000139618.15"}, fields[0])
	assert.Equal(t, `says "hi"`, fields[2].Value)
}

func TestReadFieldsWithoutHeader(t *testing.T) {
	fields, err := ReadFields(strings.NewReader("f1\tgene\tENSG00000139618\n"))
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "gene", fields[0].FieldKey)
}

func TestReadFieldsRejectsShortRows(t *testing.T) {
	_, err := ReadFields(strings.NewReader("f1\tgene\n"))
	assert.Error(t, err)
}

func TestWriteFieldsReadsBack(t *testing.T) {
	fields := []domain.RawField{
		{SourceFileID: "f1", FieldKey: "gene", Value: "ENSG00000139618"},
		{SourceFileID: "f1", FieldKey: "note", Value: "tab\tinside"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFields(&buf, fields))
	back, err := ReadFields(&buf)
	require.NoError(t, err)
	assert.Equal(t, fields, back)
}

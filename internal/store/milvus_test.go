package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteExpr(t *testing.T) {
	expr, err := deleteExpr("novel", ByIDs(3, 7))
	require.NoError(t, err)
	assert.Equal(t, `project_id == "novel" and id in [3, 7]`, expr)

	expr, err = deleteExpr("novel", Everything())
	require.NoError(t, err)
	assert.Equal(t, `project_id == "novel"`, expr)

	expr, err = deleteExpr("novel", ByChapterRange(2, 4))
	require.NoError(t, err)
	assert.Equal(t, `project_id == "novel" and chapter >= 2 and chapter <= 4`, expr)

	_, err = deleteExpr("novel", Selector{})
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestSplitReport(t *testing.T) {
	ids := []int64{1, 2, 3}

	// A failed existence lookup degrades to counting everything as inserted.
	assert.Equal(t, UpsertReport{Inserted: 3}, splitReport(ids, nil))
	assert.Equal(t, UpsertReport{Inserted: 1, Replaced: 2},
		splitReport(ids, map[int64]bool{1: true, 3: true}))
}

func TestProjectExprStripsQuotes(t *testing.T) {
	assert.Equal(t, `project_id == "novel"`, projectExpr(`no"vel`))
}

func TestMetadataRoundtrip(t *testing.T) {
	assert.Equal(t, "", encodeMetadata(nil))
	assert.Nil(t, decodeMetadata(""))

	meta := map[string]string{"source": "draft"}
	assert.Equal(t, meta, decodeMetadata(encodeMetadata(meta)))
}

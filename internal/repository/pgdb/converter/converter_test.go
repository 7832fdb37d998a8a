package converter

import (
	"testing"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogBuildConverter(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report := &usecase.BuildReport{
		BuildID:    "6f1c2b9e-5d4a-4e7b-9a61-3c0f8d2e7b10",
		StorePath:  "embeddings/product_embeddings.bin",
		Model:      "avgpool-g4-s224",
		Dim:        48,
		Total:      5,
		Embedded:   3,
		Warnings:   []usecase.BuildWarning{{RowID: "4", Reason: "image not found"}, {RowID: "5", Reason: "decode"}},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}

	conv := NewCatalogBuildConverter()

	model := conv.ToModel(report)
	assert.Equal(t, report.BuildID, model.BuildID)
	assert.EqualValues(t, 48, model.Dim)
	assert.EqualValues(t, 3, model.Embedded)
	assert.EqualValues(t, 2, model.Skipped)
	assert.Equal(t, started.Add(time.Minute), model.FinishedAt)

	warnings := conv.ToWarningModels(report)
	require.Len(t, warnings, 2)
	assert.Equal(t, CatalogBuildWarningModel{BuildID: report.BuildID, RowID: "4", Reason: "image not found"}, warnings[0])

	assert.Empty(t, conv.ToWarningModels(&usecase.BuildReport{}))
}

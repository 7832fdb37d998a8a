package converter

import (
	"github.com/DRSN-tech/product-matcher/internal/usecase"
)

// CatalogBuildConverter преобразует отчет о сборке в модели PostgreSQL.
type CatalogBuildConverter interface {
	ToModel(report *usecase.BuildReport) *CatalogBuildModel
	ToWarningModels(report *usecase.BuildReport) []CatalogBuildWarningModel
}

type CatalogBuildConverterImpl struct{}

func NewCatalogBuildConverter() *CatalogBuildConverterImpl {
	return &CatalogBuildConverterImpl{}
}

func (c *CatalogBuildConverterImpl) ToModel(report *usecase.BuildReport) *CatalogBuildModel {
	return &CatalogBuildModel{
		BuildID:    report.BuildID,
		StorePath:  report.StorePath,
		Model:      report.Model,
		Dim:        int32(report.Dim),
		Total:      int32(report.Total),
		Embedded:   int32(report.Embedded),
		Skipped:    int32(report.Skipped()),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
}

func (c *CatalogBuildConverterImpl) ToWarningModels(report *usecase.BuildReport) []CatalogBuildWarningModel {
	models := make([]CatalogBuildWarningModel, len(report.Warnings))
	for i, w := range report.Warnings {
		models[i] = CatalogBuildWarningModel{
			BuildID: report.BuildID,
			RowID:   w.RowID,
			Reason:  w.Reason,
		}
	}
	return models
}

package converter

import "time"

// CatalogBuildModel представляет запись таблицы catalog_builds в PostgreSQL.
type CatalogBuildModel struct {
	BuildID    string    `db:"build_id"`
	StorePath  string    `db:"store_path"`
	Model      string    `db:"model"`
	Dim        int32     `db:"dim"`
	Total      int32     `db:"total"`
	Embedded   int32     `db:"embedded"`
	Skipped    int32     `db:"skipped"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// CatalogBuildWarningModel представляет запись таблицы catalog_build_warnings в PostgreSQL.
type CatalogBuildWarningModel struct {
	BuildID string `db:"build_id"`
	RowID   string `db:"row_id"`
	Reason  string `db:"reason"`
}

package pgdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/DRSN-tech/product-matcher/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/DRSN-tech/product-matcher/pkg/tr"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jimlawless/whereami"
)

const uniqueViolation = "23505"

// LedgerRepo ведет журнал сборок каталога и пропущенных строк.
type LedgerRepo struct {
	db     transaction.Transactional
	conv   converter.CatalogBuildConverter
	logger logger.Logger
}

func NewLedgerRepo(db transaction.Transactional, conv converter.CatalogBuildConverter, logger logger.Logger) *LedgerRepo {
	return &LedgerRepo{
		db:     db,
		conv:   conv,
		logger: logger,
	}
}

// RecordBuild записывает сборку и все предупреждения в одной транзакции.
func (l *LedgerRepo) RecordBuild(ctx context.Context, report *usecase.BuildReport) (err error) {
	const op = "LedgerRepo.RecordBuild"

	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, l.db)
	if err != nil {
		return e.Wrap(op, err)
	}
	defer func() {
		if err != nil && tx.IsActive() {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				l.logger.Errorf(rbErr, "ledger rollback failed for build %s", report.BuildID)
			}
		}
	}()

	pgTx, ok := tx.Transaction().(pgx.Tx)
	if !ok {
		return e.Wrap(op, e.ErrTransactionNotFound)
	}
	ctx = tr.WithTx(ctx, pgTx)

	if err = l.insertBuild(ctx, l.conv.ToModel(report)); err != nil {
		return e.Wrap(op, err)
	}

	if err = l.insertWarnings(ctx, l.conv.ToWarningModels(report)); err != nil {
		return e.Wrap(op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return e.Wrap(op, err)
	}

	l.logger.Debugf("build %s recorded with %d warnings", report.BuildID, len(report.Warnings))
	return nil
}

func (l *LedgerRepo) insertBuild(ctx context.Context, model *converter.CatalogBuildModel) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		INSERT INTO catalog_builds (
			build_id,
			store_path,
			model,
			dim,
			total,
			embedded,
			skipped,
			started_at,
			finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`

	if _, err := tx.Exec(ctx, query,
		model.BuildID,
		model.StorePath,
		model.Model,
		model.Dim,
		model.Total,
		model.Embedded,
		model.Skipped,
		model.StartedAt,
		model.FinishedAt,
	); err != nil {
		if postgresDuplicate(err) {
			return fmt.Errorf("%s: build %s already recorded", whereami.WhereAmI(), model.BuildID)
		}
		return fmt.Errorf("%s: failed to insert build: %w", whereami.WhereAmI(), err)
	}

	return nil
}

func (l *LedgerRepo) insertWarnings(ctx context.Context, models []converter.CatalogBuildWarningModel) error {
	if len(models) == 0 {
		return nil
	}

	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	rows := make([][]any, len(models))
	for i, m := range models {
		rows[i] = []any{m.BuildID, m.RowID, m.Reason}
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"catalog_build_warnings"},
		[]string{"build_id", "row_id", "reason"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("%s: failed to insert warnings: %w", whereami.WhereAmI(), err)
	}

	return nil
}

func postgresDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

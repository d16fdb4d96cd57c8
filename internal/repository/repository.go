// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение уникальности или exclusion-ограничения.
	ErrConflict = errors.New("конфликт с существующей записью")
	// ErrReference — ссылка на несуществующую или чужую запись (внешний ключ).
	ErrReference = errors.New("ссылка на несуществующую запись")
)

// SQLSTATE, которые транслируются в ошибки слоя.
const (
	sqlstateUniqueViolation    = "23505"
	sqlstateExclusionViolation = "23P01"
	sqlstateForeignKey         = "23503"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB — DBTX, умеющий открывать транзакцию.
// *pgxpool.Pool открывает транзакцию, pgx.Tx — точку сохранения.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	db DB
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(db DB) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn транзакция откатывается, при успехе коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "ошибка фиксации транзакции")
	}
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == sqlstateUniqueViolation
}

// isExclusionViolation — нарушение EXCLUDE-ограничения (пересечение интервалов).
func isExclusionViolation(err error) bool {
	return pgErrorCode(err) == sqlstateExclusionViolation
}

// isForeignKeyViolation — нарушение внешнего ключа.
func isForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == sqlstateForeignKey
}

// classify переводит ошибки ограничений PostgreSQL в ошибки слоя,
// сохраняя исходную ошибку в цепочке.
func classify(err error, msg string) error {
	switch {
	case isUniqueViolation(err), isExclusionViolation(err):
		return fmt.Errorf("%s: %w: %w", msg, ErrConflict, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", msg, ErrReference, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

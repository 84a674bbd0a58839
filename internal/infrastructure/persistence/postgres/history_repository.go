package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	_ "github.com/lib/pq"
)

// querier: общее подмножество *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresHistoryRepository реализует repository.HistoryRepository для PostgreSQL.
// Порядок записей тенанта задаётся монотонным seq. WithTenantLock держит
// advisory-блокировку тенанта на всё "прочитать, вычислить, добавить",
// поэтому несколько экземпляров сервиса безопасны.
type PostgresHistoryRepository struct {
	db        *sql.DB
	q         querier
	inTx      bool
	retention int
}

var _ repository.TenantLockingHistory = (*PostgresHistoryRepository)(nil)

// NewPostgresHistoryRepository создает новый PostgreSQL repository
func NewPostgresHistoryRepository(db *sql.DB, retention int) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{
		db:        db,
		q:         db,
		retention: retention,
	}
}

// WithTenantLock выполняет fn в транзакции под pg_advisory_xact_lock тенанта.
// Блокировка снимается при commit или rollback.
func (r *PostgresHistoryRepository) WithTenantLock(
	ctx context.Context,
	tenantID valueobject.TenantID,
	fn func(ctx context.Context, history repository.HistoryRepository) error,
) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := lockTenant(ctx, tx, tenantID.String()); err != nil {
		return err
	}

	scoped := &PostgresHistoryRepository{
		db:        r.db,
		q:         tx,
		inTx:      true,
		retention: r.retention,
	}
	if err := fn(ctx, scoped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Append добавляет снимок в конец истории тенанта
func (r *PostgresHistoryRepository) Append(ctx context.Context, snapshot *entity.MetricsSnapshot) error {
	if !r.inTx {
		return r.WithTenantLock(ctx, snapshot.TenantID(), func(ctx context.Context, history repository.HistoryRepository) error {
			return history.Append(ctx, snapshot)
		})
	}

	model, err := ToDBModel(snapshot)
	if err != nil {
		return fmt.Errorf("failed to convert to DB model: %w", err)
	}
	return insertSnapshot(ctx, r.q, model)
}

func lockTenant(ctx context.Context, q querier, tenantID string) error {
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return fmt.Errorf("failed to lock tenant history: %w", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, q querier, model *SnapshotDBModel) error {
	query := `
		INSERT INTO sla_snapshots (id, tenant_id, seq, generated_at, document)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4
		FROM sla_snapshots
		WHERE tenant_id = $2
	`

	_, err := q.ExecContext(ctx, query,
		model.ID,
		model.TenantID,
		model.GeneratedAt,
		model.Document,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ReadRecent возвращает последние n снимков в хронологическом порядке
func (r *PostgresHistoryRepository) ReadRecent(
	ctx context.Context,
	tenantID valueobject.TenantID,
	n int,
) ([]*entity.MetricsSnapshot, error) {
	if r.retention > 0 && (n <= 0 || n > r.retention) {
		n = r.retention
	}

	query := `
		SELECT id, tenant_id, seq, generated_at, document
		FROM sla_snapshots
		WHERE tenant_id = $1
		ORDER BY seq DESC
	`
	args := []interface{}{tenantID.String()}
	if n > 0 {
		query += ` LIMIT $2`
		args = append(args, n)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots, err := r.scanSnapshots(rows)
	if err != nil {
		return nil, err
	}

	// Запрос идёт от новых к старым, а контракт требует хронологии
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}
	return snapshots, nil
}

// Count возвращает число снимков тенанта
func (r *PostgresHistoryRepository) Count(ctx context.Context, tenantID valueobject.TenantID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM sla_snapshots
		WHERE tenant_id = $1
	`

	var count int64
	err := r.q.QueryRowContext(ctx, query, tenantID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}

	return count, nil
}

// ListTenants возвращает тенантов с непустой историей
func (r *PostgresHistoryRepository) ListTenants(ctx context.Context) ([]valueobject.TenantID, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM sla_snapshots ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []valueobject.TenantID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenantID, err := valueobject.NewTenantID(raw)
		if err != nil {
			continue
		}
		tenants = append(tenants, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tenants, nil
}

// scanSnapshots сканирует несколько строк в слайс снимков
func (r *PostgresHistoryRepository) scanSnapshots(rows *sql.Rows) ([]*entity.MetricsSnapshot, error) {
	var snapshots []*entity.MetricsSnapshot

	for rows.Next() {
		model, err := ScanSnapshotRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		snapshot, err := ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to convert to entity: %w", err)
		}

		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return snapshots, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/proapi/proapi/internal/store"
	"github.com/proapi/proapi/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB
	executor DB
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{db: db, executor: db}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) Requests() store.RequestRepository {
	return &requestRepo{db: r.executor}
}

type requestRepo struct {
	db DB
}

func (r *requestRepo) Log(ctx context.Context, log *model.RequestLog) error {
	query := `
	INSERT INTO request_logs (
		id, token_prefix, model, upstream_model, provider_name, provider_type,
		stream, status, error_detail, finish_reason,
		prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
	) VALUES (
		:id, :token_prefix, :model, :upstream_model, :provider_name, :provider_type,
		:stream, :status, :error_detail, :finish_reason,
		:prompt_tokens, :completion_tokens, :total_tokens, :latency_ms, :created_at
	)`
	_, err := r.db.NamedExecContext(ctx, query, log)
	return err
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.RequestLog, error) {
	var log model.RequestLog
	err := r.db.GetContext(ctx, &log, `SELECT * FROM request_logs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *requestRepo) GetRecent(ctx context.Context, limit int) ([]model.RequestLog, error) {
	var logs []model.RequestLog
	err := r.db.SelectContext(ctx, &logs,
		`SELECT * FROM request_logs ORDER BY created_at DESC LIMIT ?`, limit)
	return logs, err
}

func (r *requestRepo) GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	var stats []model.DailyStats
	query := fmt.Sprintf(`
	SELECT
		date(created_at) AS day,
		COUNT(*) AS requests,
		COALESCE(SUM(total_tokens), 0) AS total_tokens,
		COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) AS errors
	FROM request_logs
	WHERE created_at >= datetime('now', '-%d days')
	GROUP BY day
	ORDER BY day DESC`, days)
	err := r.db.SelectContext(ctx, &stats, query)
	return stats, err
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wdblog/internal/model"
)

// PostgresTrackEventRepo はPostgreSQLを使用した解析イベントリポジトリ。
type PostgresTrackEventRepo struct {
	db *sql.DB
}

// NewPostgresTrackEventRepo はPostgresTrackEventRepoを生成する。
func NewPostgresTrackEventRepo(db *sql.DB) *PostgresTrackEventRepo {
	return &PostgresTrackEventRepo{db: db}
}

// Create は解析イベントを保存する。
func (r *PostgresTrackEventRepo) Create(ctx context.Context, event *model.TrackEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO track_events (id, data, remote_addr, created_at)
		 VALUES ($1, $2, $3, $4)`,
		event.ID, event.Data, event.RemoteAddr, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create track event: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TrackEventRepository = (*PostgresTrackEventRepo)(nil)

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/dmitrijs2005/blobkeeper/internal/dbx"
	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) error {

	query :=
		`INSERT INTO users (id, token_hash, created_at)
		 VALUES ($1, $2, $3)
		 `

	_, err := r.db.ExecContext(ctx, query, user.ID, user.TokenHash, user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, token_hash, created_at,
		        total_upload_times, total_upload_bytes, total_download_times, total_download_bytes,
		        last_upload_at, last_download_at
		 FROM users
		 WHERE id = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, hash string) (*models.User, error) {
	query :=
		`SELECT id, token_hash, created_at,
		        total_upload_times, total_upload_bytes, total_download_times, total_download_bytes,
		        last_upload_at, last_download_at
		 FROM users
		 WHERE token_hash = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, hash))
}

func (r *PostgresRepository) UpdateTokenHash(ctx context.Context, id, oldHash, newHash string) error {
	query :=
		`UPDATE users SET token_hash = $3
		 WHERE id = $1 AND token_hash = $2
		 `

	res, err := r.db.ExecContext(ctx, query, id, oldHash, newHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) AddTraffic(ctx context.Context, id string, dir models.Direction, n int64, at time.Time) error {
	var query string
	switch dir {
	case models.Upload:
		query =
			`UPDATE users SET total_upload_times = total_upload_times + 1,
			        total_upload_bytes = total_upload_bytes + $2,
			        last_upload_at = $3
			 WHERE id = $1
			 `
	case models.Download:
		query =
			`UPDATE users SET total_download_times = total_download_times + 1,
			        total_download_bytes = total_download_bytes + $2,
			        last_download_at = $3
			 WHERE id = $1
			 `
	default:
		return fmt.Errorf("%w: unknown traffic direction %d", common.ErrBadRequest, dir)
	}

	res, err := r.db.ExecContext(ctx, query, id, n, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	t := &user.Traffic
	err := row.Scan(&user.ID, &user.TokenHash, &user.CreatedAt,
		&t.UploadTimes, &t.UploadBytes, &t.DownloadTimes, &t.DownloadBytes,
		&t.LastUploadAt, &t.LastDownloadAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

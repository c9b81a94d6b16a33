package files

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

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `id, owner_id, file_name, content_type, size, downloads, created_at, last_access_at`

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		file.ID, file.OwnerID, file.FileName, file.ContentType, file.Size, file.Downloads, file.CreatedAt, file.LastAccessAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrDuplicateIdentifier
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Touch never moves last_access_at backwards.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) (*models.File, error) {
	query := `
		UPDATE files
		SET last_access_at = GREATEST(last_access_at, $2), downloads = downloads + 1
		WHERE id = $1
		RETURNING ` + fileColumns
	return scanOne(r.db.QueryRowContext(ctx, query, id, at))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	return scanAll(rows)
}

func (r *PostgresRepository) ListAccessedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE last_access_at < $1 AND ($2 = '' OR owner_id = $2)
		ORDER BY last_access_at, id`
	rows, err := r.db.QueryContext(ctx, query, cutoff, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	return scanAll(rows)
}

func (r *PostgresRepository) Usage(ctx context.Context) (map[string]models.Usage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT owner_id, COALESCE(SUM(size), 0), COUNT(*) FROM files GROUP BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	result := make(map[string]models.Usage)
	for rows.Next() {
		var owner string
		var u models.Usage
		if err := rows.Scan(&owner, &u.Bytes, &u.Files); err != nil {
			return nil, err
		}
		result[owner] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	f := &models.File{}
	err := s.Scan(&f.ID, &f.OwnerID, &f.FileName, &f.ContentType, &f.Size, &f.Downloads, &f.CreatedAt, &f.LastAccessAt)
	return f, err
}

func scanOne(row *sql.Row) (*models.File, error) {
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func scanAll(rows *sql.Rows) ([]*models.File, error) {
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

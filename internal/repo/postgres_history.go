package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

//go:embed schema.sql
var schema string

const defaultListLimit = 50

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Open connects a pool, verifies it with a ping and applies the schema.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("invalid POSTGRES_URL")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type PostgresHistoryRepo struct {
	db DBTX
}

func NewPostgresHistoryRepo(db DBTX) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

func (r *PostgresHistoryRepo) Insert(ctx context.Context, rec model.GenerationRecord) error {
	var imageURL *string
	if rec.ImageURL != "" {
		imageURL = &rec.ImageURL
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO generations
		    (id, prompt, width, height, seed, complexity, attempts, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID,
		rec.Prompt,
		rec.Width,
		rec.Height,
		rec.Seed,
		string(rec.Complexity),
		rec.Attempts,
		imageURL,
		rec.CreatedAt.UTC(),
	)
	return err
}

func (r *PostgresHistoryRepo) List(ctx context.Context, limit, offset int) ([]model.GenerationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, prompt, width, height, seed, complexity, attempts, image_url, created_at
		FROM generations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.GenerationRecord, 0)
	for rows.Next() {
		var rec model.GenerationRecord
		var complexity string
		var imageURL *string

		if err := rows.Scan(
			&rec.ID,
			&rec.Prompt,
			&rec.Width,
			&rec.Height,
			&rec.Seed,
			&complexity,
			&rec.Attempts,
			&imageURL,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		rec.Complexity = model.Complexity(complexity)
		if imageURL != nil {
			rec.ImageURL = *imageURL
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresHistoryRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM generations WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

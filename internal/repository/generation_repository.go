package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sarthi/gateway/internal/models"
)

// GenerationRepository journals cache generation lifecycle events in
// cache_generations. It satisfies offline.Journal.
type GenerationRepository struct {
	pool *pgxpool.Pool
}

func NewGenerationRepository(pool *pgxpool.Pool) *GenerationRepository {
	return &GenerationRepository{pool: pool}
}

func (r *GenerationRepository) GenerationInstalled(ctx context.Context, tag string, corePaths []string) error {
	const query = `
		INSERT INTO cache_generations (tag, core_paths, installed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tag)
		DO UPDATE SET
			core_paths = EXCLUDED.core_paths,
			installed_at = NOW(),
			deleted_at = NULL
	`
	_, err := r.pool.Exec(ctx, query, tag, corePaths)
	return err
}

func (r *GenerationRepository) GenerationActivated(ctx context.Context, tag string) error {
	const query = `UPDATE cache_generations SET activated_at = NOW() WHERE tag = $1`
	_, err := r.pool.Exec(ctx, query, tag)
	return err
}

func (r *GenerationRepository) GenerationDeleted(ctx context.Context, tag string) error {
	const query = `
		INSERT INTO cache_generations (tag, core_paths, installed_at, deleted_at)
		VALUES ($1, '{}', NOW(), NOW())
		ON CONFLICT (tag)
		DO UPDATE SET deleted_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, tag)
	return err
}

func (r *GenerationRepository) List(ctx context.Context, limit int) ([]models.Generation, error) {
	const query = `
		SELECT tag, core_paths, installed_at, activated_at, deleted_at
		FROM cache_generations
		ORDER BY installed_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var generations []models.Generation
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(
			&g.Tag,
			&g.CorePaths,
			&g.InstalledAt,
			&g.ActivatedAt,
			&g.DeletedAt,
		); err != nil {
			return nil, err
		}
		generations = append(generations, g)
	}
	return generations, rows.Err()
}

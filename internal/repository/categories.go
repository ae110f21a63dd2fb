package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guiaperfil/guia-api/internal/domain"
)

// CategoriesRepository provides persistence helpers for directory categories.
type CategoriesRepository struct {
	pool *pgxpool.Pool
}

const categoryColumns = `id, name, color, created_at`

// Create inserts a new category.
func (r *CategoriesRepository) Create(ctx context.Context, name, color string) (domain.Category, error) {
	query := fmt.Sprintf(`
        INSERT INTO categories (name, color)
        VALUES ($1,$2)
        RETURNING %s
    `, categoryColumns)

	category, err := scanCategory(r.pool.QueryRow(ctx, query, name, color))
	if err != nil {
		return domain.Category{}, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

// GetByID fetches a category by its identifier.
func (r *CategoriesRepository) GetByID(ctx context.Context, id string) (domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE id = $1`, categoryColumns)

	category, err := scanCategory(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Category{}, ErrNotFound
		}
		return domain.Category{}, err
	}
	return category, nil
}

// List returns all categories ordered by name.
func (r *CategoriesRepository) List(ctx context.Context) ([]domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories ORDER BY name`, categoryColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

// Update replaces a category's name and color.
func (r *CategoriesRepository) Update(ctx context.Context, id, name, color string) (domain.Category, error) {
	query := fmt.Sprintf(`
        UPDATE categories SET name = $2, color = $3 WHERE id = $1
        RETURNING %s
    `, categoryColumns)

	category, err := scanCategory(r.pool.QueryRow(ctx, query, id, name, color))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Category{}, ErrNotFound
		}
		return domain.Category{}, fmt.Errorf("update category: %w", err)
	}
	return category, nil
}

// Delete removes a category and its account links.
func (r *CategoriesRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCategory(row pgx.Row) (domain.Category, error) {
	var category domain.Category
	err := row.Scan(&category.ID, &category.Name, &category.Color, &category.CreatedAt)
	if err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campusbook/internal/models"
)

const resourceColumns = `id, owner_id, title, description, category, location, capacity,
	availability_rules, requires_approval, status, created_at, updated_at`

// CreateResource inserts a resource. A non-zero ID is kept.
func (db *DB) CreateResource(ctx context.Context, res *models.Resource) error {
	if res.Status == "" {
		res.Status = models.ResourcePublished
	}
	now := dbTime(time.Now())
	res.CreatedAt = now
	res.UpdatedAt = now

	query := `INSERT INTO resources (
				owner_id, title, description, category, location, capacity,
				availability_rules, requires_approval, status, created_at, updated_at
			) VALUES (
				:owner_id, :title, :description, :category, :location, :capacity,
				:availability_rules, :requires_approval, :status, :created_at, :updated_at
			)`
	if res.ID != 0 {
		query = `INSERT INTO resources (
				id, owner_id, title, description, category, location, capacity,
				availability_rules, requires_approval, status, created_at, updated_at
			) VALUES (
				:id, :owner_id, :title, :description, :category, :location, :capacity,
				:availability_rules, :requires_approval, :status, :created_at, :updated_at
			)`
	}

	result, err := db.NamedExecContext(ctx, query, res)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	res.ID = id
	return nil
}

func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	var res models.Resource
	err := db.GetContext(ctx, &res, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &res, nil
}

// ListResources returns published resources, optionally of one category.
func (db *DB) ListResources(ctx context.Context, category string) ([]models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE status = ?`
	args := []any{models.ResourcePublished}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY title, id`

	var resources []models.Resource
	if err := db.SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

func (db *DB) UpdateResourceStatus(ctx context.Context, id int64, status string) error {
	result, err := db.ExecContext(ctx, `UPDATE resources SET status = ?, updated_at = ? WHERE id = ?`,
		status, dbTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update resource status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

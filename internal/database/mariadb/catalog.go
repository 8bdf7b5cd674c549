package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-quality/internal/database"
)

// Catalog reads image references from the catalog's images table. The
// catalog owns the corpus; this repository never writes to it.
type Catalog struct {
	pool *Pool
}

// NewCatalog creates a catalog reader on top of a MariaDB pool.
func NewCatalog(pool *Pool) *Catalog {
	return &Catalog{pool: pool}
}

// ListImages returns all image references in a scope, oldest first.
// Soft-deleted images are excluded; their quality records cascade away
// with the image itself.
func (c *Catalog) ListImages(ctx context.Context, scope string) ([]database.ImageRef, error) {
	rows, err := c.pool.db.QueryContext(ctx, `
		SELECT id, file_path
		FROM images
		WHERE project_id = ? AND deleted_at IS NULL
		ORDER BY created_at
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("query catalog images: %w", err)
	}
	defer rows.Close()

	var refs []database.ImageRef
	for rows.Next() {
		var ref database.ImageRef
		if err := rows.Scan(&ref.ID, &ref.Path); err != nil {
			return nil, fmt.Errorf("scan catalog image: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog images: %w", err)
	}
	return refs, nil
}

// CountImages returns the number of images in a scope.
func (c *Catalog) CountImages(ctx context.Context, scope string) (int, error) {
	var count int
	err := c.pool.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM images
		WHERE project_id = ? AND deleted_at IS NULL
	`, scope).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count catalog images: %w", err)
	}
	return count, nil
}

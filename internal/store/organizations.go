package store

import (
	"context"
	"fmt"

	"github.com/study01/study-app-server/internal/database"
)

// Organizations reads the organizations table (id, name, created_at,
// updated_at).
type Organizations struct{}

// NewOrganizations returns an Organizations store.
func NewOrganizations() *Organizations {
	return &Organizations{}
}

// ListNames returns organization names ordered by id. The result is never
// nil so it encodes as an empty JSON array.
func (o *Organizations) ListNames(ctx context.Context, q database.Querier) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT name FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query organization names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan organization name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization names: %w", err)
	}
	return names, nil
}

package query

import (
	"context"

	"gorm.io/gorm"

	"github.com/ledgerid/core/projection/users"
)

// GetUserByID looks up a single user row (§4.5's get_by_id shape).
func GetUserByID(ctx context.Context, db *gorm.DB, instanceID, userID string) (*users.Row, error) {
	var row users.Row
	if err := GetByID(ctx, db, instanceID, "user_id", userID, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// SearchUsersFilter is the set of predicates SearchUsers supports (§4.5:
// equality, prefix, case-insensitive exact, membership).
type SearchUsersFilter struct {
	UsernamePrefix string
	EmailEquals    string
	State          string
	States         []string
}

// SearchUsers is the users projection's search endpoint.
func SearchUsers(ctx context.Context, db *gorm.DB, instanceID string, filter SearchUsersFilter, sortColumn string, dir SortDir, page Pagination) ([]users.Row, Page, error) {
	if sortColumn == "" {
		sortColumn = "username"
	}
	var rows []users.Row
	result, err := Search(ctx, db, instanceID, func(q *gorm.DB) *gorm.DB {
		if filter.UsernamePrefix != "" {
			q = q.Where("username ILIKE ?", filter.UsernamePrefix+"%")
		}
		if filter.EmailEquals != "" {
			q = q.Where("LOWER(email) = LOWER(?)", filter.EmailEquals)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if len(filter.States) > 0 {
			q = q.Where("state IN ?", filter.States)
		}
		return q
	}, sortColumn, "user_id", dir, page, &rows)
	return rows, result, err
}

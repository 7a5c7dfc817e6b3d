package query

import (
	"context"

	"gorm.io/gorm"

	"github.com/ledgerid/core/projection/orgs"
)

// GetOrgByID looks up a single org row.
func GetOrgByID(ctx context.Context, db *gorm.DB, instanceID, orgID string) (*orgs.Row, error) {
	var row orgs.Row
	if err := GetByID(ctx, db, instanceID, "org_id", orgID, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// SearchOrgsFilter is the set of predicates SearchOrgs supports.
type SearchOrgsFilter struct {
	NamePrefix string
	State      string
}

// SearchOrgs is the orgs projection's search endpoint.
func SearchOrgs(ctx context.Context, db *gorm.DB, instanceID string, filter SearchOrgsFilter, dir SortDir, page Pagination) ([]orgs.Row, Page, error) {
	var rows []orgs.Row
	result, err := Search(ctx, db, instanceID, func(q *gorm.DB) *gorm.DB {
		if filter.NamePrefix != "" {
			q = q.Where("name ILIKE ?", filter.NamePrefix+"%")
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		return q
	}, "name", "org_id", dir, page, &rows)
	return rows, result, err
}

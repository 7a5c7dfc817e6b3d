// Package query implements the Query Façade (§4.5): read-only, tenant-
// scoped accessors over projection tables. Queries never read events
// directly; they only ever hit the gorm-managed read-model tables the
// projection package maintains.
package query

import (
	"context"
	"reflect"

	"gorm.io/gorm"

	"github.com/ledgerid/core/ierr"
)

// SortDir is the direction of a Search's sort key.
type SortDir int

const (
	Asc SortDir = iota
	Desc
)

// Pagination is a cursor over a sort key plus id tiebreak (§4.5). Both
// Cursor and CursorID must come from the same row (the last row of the
// previous page) — a sort column alone cannot disambiguate rows sharing
// its value, so the id half of the keyset is mandatory once Cursor is set.
type Pagination struct {
	// Cursor is the sort-key value of the last row of the previous page,
	// empty for the first page.
	Cursor string
	// CursorID is that same row's id-column value, breaking ties within
	// one Cursor value the same way idColumn breaks ties in ORDER BY.
	CursorID string
	Limit    int
}

// Page is one Search result.
type Page struct {
	TotalCount int64
	// HasMore reports whether Limit+1 rows would have matched, i.e.
	// whether the caller should offer a next page using the last row's
	// sort-key and id values as the next Cursor/CursorID.
	HasMore bool
}

// GetByID fetches one row of model type dest (a pointer to a struct) by
// (instance_id, idColumn), returning a NotFound *ierr.Error if absent.
// instance_id is always the leading filter (§4.5) so the query can use its
// leading index column; idColumn names the projection's own id column
// (e.g. "user_id"), which varies per read-model table.
func GetByID(ctx context.Context, db *gorm.DB, instanceID, idColumn, id string, dest interface{}) error {
	err := db.WithContext(ctx).
		Where("instance_id = ? AND "+idColumn+" = ?", instanceID, id).
		First(dest).Error
	if err == gorm.ErrRecordNotFound {
		return ierr.New(ierr.NotFound, "not found").WithAggregate(instanceID, "", id)
	}
	return err
}

// Search runs a filtered, paginated query. scope customizes the base query
// with the projection's filter capabilities (equality, prefix,
// case-insensitive exact, membership, range predicates, per §4.5); both
// sortColumn and idColumn must be indexed columns on dest's table, and
// idColumn breaks ties within one sortColumn value.
func Search(ctx context.Context, db *gorm.DB, instanceID string, scope func(*gorm.DB) *gorm.DB, sortColumn, idColumn string, dir SortDir, page Pagination, dest interface{}) (Page, error) {
	base := db.WithContext(ctx).Where("instance_id = ?", instanceID)
	if scope != nil {
		base = scope(base)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Model(dest).Count(&total).Error; err != nil {
		return Page{}, err
	}

	q := base.Session(&gorm.Session{})
	op := ">"
	order := sortColumn + " ASC, " + idColumn + " ASC"
	if dir == Desc {
		op = "<"
		order = sortColumn + " DESC, " + idColumn + " DESC"
	}
	q = q.Order(order)
	if page.Cursor != "" {
		// Keyset predicate over the full ORDER BY, not just sortColumn:
		// a non-unique sort column (e.g. "state") would otherwise let the
		// row-equal-to-cursor case fall through to idColumn and skip every
		// remaining row that shares the cursor's sort value.
		q = q.Where("("+sortColumn+", "+idColumn+") "+op+" (?, ?)", page.Cursor, page.CursorID)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	// fetch one extra row to know whether another page follows, without a
	// second COUNT query.
	if err := q.Limit(limit + 1).Find(dest).Error; err != nil {
		return Page{}, err
	}

	return Page{TotalCount: total, HasMore: trimToLimit(dest, limit)}, nil
}

// trimToLimit shrinks the slice dest points to down to limit elements if it
// holds more, reporting whether it did. dest must be a pointer to a slice,
// as required by gorm's Find.
func trimToLimit(dest interface{}, limit int) bool {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr {
		return false
	}
	v = v.Elem()
	if v.Kind() != reflect.Slice || v.Len() <= limit {
		return false
	}
	v.Set(v.Slice(0, limit))
	return true
}

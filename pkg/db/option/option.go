package option

import (
	"fmt"

	"examprep-marketplace/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption decorates a query before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single WHERE condition. Field must be a trusted column
// name; the value is always bound.
func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if c.Operator == IN {
			return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		}
		return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	}
}

// ApplyPagination applies keyset pagination over (created_at, id), newest
// first. One extra row is fetched so callers can detect another page.
// Cursors are expected to have passed Pagination.Validate.
func ApplyPagination(p pagination.Pagination) QueryOption {
	p = p.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		if c, err := p.DecodedCursor(); err == nil && c != nil {
			db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
		}
		return db.Order("created_at DESC").Order("id DESC").Limit(p.Limit + 1)
	}
}

// LockingUpdate adds SELECT ... FOR UPDATE. SQLite has no row locks, so it is
// skipped there.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

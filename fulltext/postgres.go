package fulltext

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Postgres uses native tsvector columns, websearch_to_tsquery and ts_rank.
type Postgres struct{}

const tsQuery = "websearch_to_tsquery('english', ?)"

func (Postgres) Name() string { return "postgres" }

func (Postgres) Match(column string) string {
	return column + " @@ " + tsQuery
}

func (Postgres) Rank(column string) string {
	return "ts_rank(" + column + ", " + tsQuery + ")"
}

func (Postgres) Year(column string) string {
	return "CAST(EXTRACT(YEAR FROM " + column + ") AS INTEGER)"
}

func (Postgres) Month(column string) string {
	return "CAST(EXTRACT(MONTH FROM " + column + ") AS INTEGER)"
}

func (Postgres) Refresh(tx *gorm.DB, table string, id uint, c Components) error {
	err := tx.Exec("UPDATE "+table+" SET "+DocumentColumn+" = "+
		"setweight(to_tsvector('english', ?), 'A') || "+
		"setweight(to_tsvector('english', ?), 'B') || "+
		"setweight(to_tsvector('english', ?), 'C') WHERE id = ?",
		c.A, c.B, c.C, id).Error
	return errors.Wrapf(err, "refresh search vector of %s %d", table, id)
}

func (Postgres) Migrate(db *gorm.DB, tables []string) error {
	for _, table := range tables {
		stmts := []string{
			"ALTER TABLE " + table + " ADD COLUMN IF NOT EXISTS " + DocumentColumn + " tsvector",
			"CREATE INDEX IF NOT EXISTS " + table + "_" + DocumentColumn + "_idx ON " + table + " USING GIN (" + DocumentColumn + ")",
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return errors.Wrapf(err, "migrate %s", table)
			}
		}
	}
	return nil
}

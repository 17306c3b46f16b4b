// Package fulltext provides the ranked full-text primitive the search engine
// runs on, for both SQLite and PostgreSQL stores.
package fulltext

import (
	"gorm.io/gorm"
)

// DocumentColumn holds the precomputed search vector on every content table.
const DocumentColumn = "search_document"

// Dialect is the store-specific part of full-text search and date grouping.
// Match and Rank each take the raw web search query as their single bind
// parameter.
type Dialect interface {
	Name() string
	Match(column string) string
	Rank(column string) string
	Year(column string) string
	Month(column string) string
	// Refresh recomputes the search vector of one row inside tx.
	Refresh(tx *gorm.DB, table string, id uint, c Components) error
	// Migrate adds the search vector column and its indexes.
	Migrate(db *gorm.DB, tables []string) error
}

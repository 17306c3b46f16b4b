package fulltext

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// SQLiteDriverName is the database/sql driver with the search functions installed.
const SQLiteDriverName = "sqlite3_weblog"

var registerOnce sync.Once

// RegisterSQLiteDriver registers a go-sqlite3 driver whose connections carry
// websearch_match(doc, query) and websearch_rank(doc, query).
func RegisterSQLiteDriver() {
	registerOnce.Do(func() {
		sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("websearch_match", sqliteMatch, true); err != nil {
					return err
				}
				return conn.RegisterFunc("websearch_rank", sqliteRank, true)
			},
		})
	})
}

func textArg(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}

func sqliteMatch(doc, query interface{}) int64 {
	q := ParseQuery(textArg(query))
	if q.Empty() {
		return 0
	}
	if q.Matches(DecodeVector(textArg(doc))) {
		return 1
	}
	return 0
}

func sqliteRank(doc, query interface{}) float64 {
	q := ParseQuery(textArg(query))
	if q.Empty() {
		return 0
	}
	return q.Rank(DecodeVector(textArg(doc)))
}

// SQLite computes vectors in Go and evaluates queries through the functions
// installed by RegisterSQLiteDriver.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Match(column string) string {
	return "websearch_match(" + column + ", ?) = 1"
}

func (SQLite) Rank(column string) string {
	return "websearch_rank(" + column + ", ?)"
}

func (SQLite) Year(column string) string {
	return "CAST(strftime('%Y', " + column + ") AS INTEGER)"
}

func (SQLite) Month(column string) string {
	return "CAST(strftime('%m', " + column + ") AS INTEGER)"
}

func (SQLite) Refresh(tx *gorm.DB, table string, id uint, c Components) error {
	err := tx.Exec("UPDATE "+table+" SET "+DocumentColumn+" = ? WHERE id = ?", BuildVector(c).Encode(), id).Error
	return errors.Wrapf(err, "refresh search vector of %s %d", table, id)
}

func (SQLite) Migrate(db *gorm.DB, tables []string) error {
	for _, table := range tables {
		if db.Migrator().HasColumn(table, DocumentColumn) {
			continue
		}
		if err := db.Exec("ALTER TABLE " + table + " ADD COLUMN " + DocumentColumn + " TEXT").Error; err != nil {
			return errors.Wrapf(err, "add %s to %s", DocumentColumn, table)
		}
	}
	return nil
}

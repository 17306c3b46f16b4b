package models

import (
	"database/sql/driver"
	"time"

	"github.com/pkg/errors"
)

// Timestamp scans times that SQLite hands back as text once they have passed
// through a UNION or a subquery.
type Timestamp struct {
	time.Time
}

var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

func (t *Timestamp) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return errors.Errorf("cannot scan %T into Timestamp", value)
}

func (t Timestamp) Value() (driver.Value, error) {
	return t.Time, nil
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range timestampFormats {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return errors.Errorf("unrecognised timestamp %q", s)
}

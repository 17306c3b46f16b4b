// Package content is the write path of the content store and the mixed-type
// materializer used by every listing.
package content

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"weblog/common"
	"weblog/fulltext"
	"weblog/models"
)

var (
	ErrInvalidTag  = errors.New("invalid tag")
	ErrUnknownType = errors.New("unknown content type")
)

var tagRe = regexp.MustCompile(`^[a-z0-9]+$`)

// Change describes a committed write.
type Change struct {
	Type    string
	ID      uint
	Deleted bool
}

type Store struct {
	db      *gorm.DB
	dialect fulltext.Dialect

	mu        sync.RWMutex
	listeners []func(Change)
}

func NewStore(db *gorm.DB, dialect fulltext.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// OnChange registers fn to run after every committed write.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.listeners {
		fn(c)
	}
}

// NormalizeTags trims and lower-cases tag names, dropping blanks and
// duplicates while keeping the first occurrence order.
func NormalizeTags(names []string) ([]string, error) {
	seen := map[string]bool{}
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		if !tagRe.MatchString(name) {
			return nil, errors.Wrapf(ErrInvalidTag, "%q", name)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func ensureTags(tx *gorm.DB, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		var tag models.Tag
		if err := tx.Where(models.Tag{Tag: name}).FirstOrCreate(&tag).Error; err != nil {
			return nil, errors.Wrapf(err, "create tag %s", name)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Save inserts or updates item, replaces its tag set with tagNames and
// recomputes its search vector, all in one transaction.
func (s *Store) Save(ctx context.Context, item models.Item, tagNames []string) error {
	kind, ok := models.KindOf(item.ItemType())
	if !ok {
		return errors.Wrapf(ErrUnknownType, "%q", item.ItemType())
	}
	names, err := NormalizeTags(tagNames)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := ensureTags(tx, names)
		if err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return errors.Wrapf(err, "save %s", kind.Type)
		}

		assoc := tx.Model(item).Association("Tags")
		if len(tags) == 0 {
			err = assoc.Clear()
		} else {
			err = assoc.Replace(tags)
		}
		if err != nil {
			return errors.Wrapf(err, "replace tags of %s %d", kind.Type, item.ItemID())
		}
		item.SetTags(tags)

		return s.dialect.Refresh(tx, kind.Table, item.ItemID(), item.IndexComponents())
	})
	if err != nil {
		return err
	}

	common.Log.WithFields(logrus.Fields{
		"type": kind.Type,
		"id":   item.ItemID(),
		"tags": len(names),
	}).Debug("saved item")
	s.notify(Change{Type: kind.Type, ID: item.ItemID()})
	return nil
}

// Delete removes item and its tag associations. Tags themselves are kept.
func (s *Store) Delete(ctx context.Context, item models.Item) error {
	kind, ok := models.KindOf(item.ItemType())
	if !ok {
		return errors.Wrapf(ErrUnknownType, "%q", item.ItemType())
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(item).Association("Tags").Clear(); err != nil {
			return errors.Wrapf(err, "clear tags of %s %d", kind.Type, item.ItemID())
		}
		res := tx.Delete(item)
		if res.Error != nil {
			return errors.Wrapf(res.Error, "delete %s %d", kind.Type, item.ItemID())
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(common.ErrNotFound, "%s %d", kind.Type, item.ItemID())
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(Change{Type: kind.Type, ID: item.ItemID(), Deleted: true})
	return nil
}

func (s *Store) SaveSeries(ctx context.Context, series *models.Series) error {
	if err := s.db.WithContext(ctx).Save(series).Error; err != nil {
		return errors.Wrap(err, "save series")
	}
	s.notify(Change{Type: "series", ID: series.ID})
	return nil
}

// DeleteSeries detaches the member posts and deletes the series.
func (s *Store) DeleteSeries(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Post{}).Where("series_id = ?", id).UpdateColumn("series_id", nil).Error
		if err != nil {
			return errors.Wrapf(err, "detach posts of series %d", id)
		}
		res := tx.Delete(&models.Series{}, id)
		if res.Error != nil {
			return errors.Wrapf(res.Error, "delete series %d", id)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(common.ErrNotFound, "series %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(Change{Type: "series", ID: id, Deleted: true})
	return nil
}

const reindexBatch = 100

// Reindex recomputes the search vector of every item and returns how many
// were refreshed.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range models.Kinds {
		var ids []uint
		if err := s.db.WithContext(ctx).Table(kind.Table).Order("id").Pluck("id", &ids).Error; err != nil {
			return total, errors.Wrapf(err, "list %s", kind.Table)
		}

		for start := 0; start < len(ids); start += reindexBatch {
			end := start + reindexBatch
			if end > len(ids) {
				end = len(ids)
			}
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				items, err := kind.Load(tx, ids[start:end])
				if err != nil {
					return errors.Wrapf(err, "load %s", kind.Table)
				}
				for _, item := range items {
					if err := s.dialect.Refresh(tx, kind.Table, item.ItemID(), item.IndexComponents()); err != nil {
						return err
					}
				}
				total += len(items)
				return nil
			})
			if err != nil {
				return total, err
			}
		}
		common.Log.WithField("table", kind.Table).WithField("count", len(ids)).Info("reindexed")
	}
	return total, nil
}

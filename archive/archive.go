// Package archive serves the browsing views: tag intersections, related tags,
// date archives, series and the detail lookups by date and slug.
package archive

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/fulltext"
	"weblog/models"
)

// MaxIntersectionTags caps how many tags a tag archive intersects.
const MaxIntersectionTags = 3

type Archive struct {
	db      *gorm.DB
	dialect fulltext.Dialect
}

func NewArchive(db *gorm.DB, dialect fulltext.Dialect) *Archive {
	return &Archive{db: db, dialect: dialect}
}

// Entry is an item of any type in a mixed listing.
type Entry struct {
	Type string      `json:"type"`
	Item models.Item `json:"item"`
}

func entriesOf(items []models.Item) []Entry {
	out := make([]Entry, len(items))
	for i, item := range items {
		out[i] = Entry{Type: item.ItemType(), Item: item}
	}
	return out
}

// sortEntries orders by creation time, then type and primary key ascending.
func sortEntries(entries []Entry, newestFirst bool) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Item, entries[j].Item
		if !a.Created().Equal(b.Created()) {
			if newestFirst {
				return a.Created().After(b.Created())
			}
			return a.Created().Before(b.Created())
		}
		if a.ItemType() != b.ItemType() {
			return a.ItemType() < b.ItemType()
		}
		return a.ItemID() < b.ItemID()
	})
}

// visible starts a query on the kind's table restricted to public rows.
func visible(db *gorm.DB, kind models.Kind) *gorm.DB {
	qs := db.Table(kind.Table)
	if kind.Visible != "" {
		qs = qs.Where(kind.Visible)
	}
	return qs
}

// ParseTagPath splits a tag path on '+' or '/', dropping blanks and repeats.
func ParseTagPath(path string) []string {
	fields := strings.FieldsFunc(path, func(r rune) bool {
		return r == '+' || r == '/' || r == ' '
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		f = strings.ToLower(f)
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

type TagArchive struct {
	Tags       []models.Tag `json:"tags"`
	Tag        models.Tag   `json:"tag"`
	OnlyOneTag bool         `json:"only_one_tag"`
	Items      []Entry      `json:"items"`
	Total      int          `json:"total"`
	Page       common.Page  `json:"page"`
}

// existingTags returns the tags of names that exist, in the order of names.
func existingTags(db *gorm.DB, names []string) ([]models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var found []models.Tag
	if err := db.Where("tag IN ?", names).Find(&found).Error; err != nil {
		return nil, errors.Wrap(err, "find tags")
	}
	byName := map[string]models.Tag{}
	for _, t := range found {
		byName[t.Tag] = t
	}
	var out []models.Tag
	for _, name := range names {
		if t, ok := byName[name]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Tags lists every item carrying all of the first three existing tags of
// path, newest first. No matching tag, no item or a bad page is
// common.ErrNotFound.
func (a *Archive) Tags(ctx context.Context, path, rawPage string) (*TagArchive, error) {
	db := a.db.WithContext(ctx)

	tags, err := existingTags(db, ParseTagPath(path))
	if err != nil {
		return nil, err
	}
	if len(tags) > MaxIntersectionTags {
		tags = tags[:MaxIntersectionTags]
	}
	if len(tags) == 0 {
		return nil, errors.Wrapf(common.ErrNotFound, "no tags in %q", path)
	}

	ids := make([]uint, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}

	var entries []Entry
	for _, kind := range models.Kinds {
		var pks []uint
		t, jt := kind.Table, kind.JoinTable
		err := visible(db, kind).
			Joins("JOIN "+jt+" ON "+jt+"."+kind.JoinColumn+" = "+t+".id").
			Where(jt+".tag_id IN ?", ids).
			Group(t+".id").
			Having("COUNT(DISTINCT "+jt+".tag_id) = ?", len(ids)).
			Pluck(t+".id", &pks).Error
		if err != nil {
			return nil, errors.Wrapf(err, "intersect tags on %s", t)
		}
		items, err := kind.Load(db, pks)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", t)
		}
		entries = append(entries, entriesOf(items)...)
	}
	if len(entries) == 0 {
		return nil, errors.Wrapf(common.ErrNotFound, "nothing tagged %q", path)
	}
	sortEntries(entries, true)

	page, err := common.Paginate(len(entries), rawPage, common.PageSize)
	if err != nil {
		return nil, err
	}
	start, end := page.Bounds()

	return &TagArchive{
		Tags:       tags,
		Tag:        tags[0],
		OnlyOneTag: len(tags) == 1,
		Items:      entries[start:end],
		Total:      len(entries),
		Page:       page,
	}, nil
}

type TagCount struct {
	Tag    models.Tag       `json:"tag"`
	ByType map[string]int64 `json:"by_type"`
	Total  int64            `json:"total"`
}

// TagCounts counts the public items of every type carrying tag.
func (a *Archive) TagCounts(ctx context.Context, tag string) (*TagCount, error) {
	db := a.db.WithContext(ctx)

	var t models.Tag
	if err := db.Where("tag = ?", tag).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(common.ErrNotFound, "tag %q", tag)
		}
		return nil, errors.Wrap(err, "find tag")
	}

	tc := &TagCount{Tag: t, ByType: map[string]int64{}}
	for _, kind := range models.Kinds {
		var n int64
		jt := kind.JoinTable
		err := visible(db, kind).
			Joins("JOIN "+jt+" ON "+jt+"."+kind.JoinColumn+" = "+kind.Table+".id").
			Where(jt+".tag_id = ?", t.ID).
			Count(&n).Error
		if err != nil {
			return nil, errors.Wrapf(err, "count %s", kind.Table)
		}
		tc.ByType[kind.Type] = n
		tc.Total += n
	}
	return tc, nil
}

// TagSuggestions returns tags containing term, shortest first.
func (a *Archive) TagSuggestions(ctx context.Context, term string, limit int) ([]string, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	tags := []string{}
	if term == "" {
		return tags, nil
	}
	err := a.db.WithContext(ctx).Model(&models.Tag{}).
		Where("tag LIKE ?", "%"+term+"%").
		Order("LENGTH(tag), tag").
		Limit(limit).
		Pluck("tag", &tags).Error
	return tags, errors.Wrap(err, "suggest tags")
}

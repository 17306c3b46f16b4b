package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"weblog/models"
)

// DefaultRelatedLimit is how many related tags are suggested by default.
const DefaultRelatedLimit = 10

type relatedKey struct {
	tag   string
	limit int
}

// RelatedCache memoizes RelatedTags. It is owned by the caller, typically for
// the length of one request, so it never outlives the data it was built from.
type RelatedCache struct {
	mu sync.Mutex
	m  map[relatedKey][]models.Tag
}

func NewRelatedCache() *RelatedCache {
	return &RelatedCache{m: map[relatedKey][]models.Tag{}}
}

func (c *RelatedCache) get(k relatedKey) ([]models.Tag, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags, ok := c.m[k]
	return tags, ok
}

func (c *RelatedCache) put(k relatedKey, tags []models.Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[k] = tags
}

type coTag struct {
	Tag string
}

// RelatedTags returns up to limit tags that most often appear on the same
// public items as tag, most frequent first. Ties keep the order in which the
// tags were first met, scanning types in registry order, then items by id,
// then tags by name. cache may be nil.
func (a *Archive) RelatedTags(ctx context.Context, tag string, limit int, cache *RelatedCache) ([]models.Tag, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	key := relatedKey{tag, limit}
	if cache != nil {
		if tags, ok := cache.get(key); ok {
			return tags, nil
		}
	}

	db := a.db.WithContext(ctx)
	counts := map[string]int{}
	var order []string

	for _, kind := range models.Kinds {
		t, jt, jc := kind.Table, kind.JoinTable, kind.JoinColumn
		tagged := db.Table(jt).
			Select(jt+"."+jc).
			Joins("JOIN tags ON tags.id = "+jt+".tag_id").
			Where("tags.tag = ?", tag)

		var rows []coTag
		err := visible(db, kind).
			Joins("JOIN "+jt+" ON "+jt+"."+jc+" = "+t+".id").
			Joins("JOIN tags ON tags.id = "+jt+".tag_id").
			Where(t+".id IN (?)", tagged).
			Where("tags.tag <> ?", tag).
			Order(t + ".id, tags.tag").
			Select("tags.tag AS tag").
			Scan(&rows).Error
		if err != nil {
			return nil, errors.Wrapf(err, "related tags on %s", t)
		}
		for _, r := range rows {
			if _, ok := counts[r.Tag]; !ok {
				order = append(order, r.Tag)
			}
			counts[r.Tag]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}

	tags, err := existingTags(db, order)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	if cache != nil {
		cache.put(key, tags)
	}
	return tags, nil
}

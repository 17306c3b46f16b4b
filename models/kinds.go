package models

import (
	"time"

	"gorm.io/gorm"

	"weblog/fulltext"
)

const (
	PostType      = "post"
	LinkType      = "link"
	QuotationType = "quotation"
)

// Item is implemented by the three content types. The set is closed: every
// implementation has an entry in Kinds.
type Item interface {
	ItemType() string
	ItemID() uint
	Created() time.Time
	TagList() []Tag
	SetTags([]Tag)
	IndexComponents() fulltext.Components
}

// Kind describes how one content type is stored.
type Kind struct {
	Type       string
	Table      string
	JoinTable  string
	JoinColumn string
	Plural     string
	// Visible is a condition restricting public listings, empty when
	// every row is public.
	Visible string
	// Load fetches rows by primary key with their tags preloaded.
	Load func(db *gorm.DB, ids []uint) ([]Item, error)
}

// DefaultNoun names a mix of content types.
const DefaultNoun = "Items"

// Kinds is ordered; listings that need a stable type order follow it.
var Kinds = []Kind{
	{
		Type:       PostType,
		Table:      "posts",
		JoinTable:  "post_tags",
		JoinColumn: "post_id",
		Plural:     "Posts",
		Visible:    "posts.status = '" + StatusPublished + "'",
		Load:       loader[Post]("posts"),
	},
	{
		Type:       LinkType,
		Table:      "links",
		JoinTable:  "link_tags",
		JoinColumn: "link_id",
		Plural:     "Links",
		Load:       loader[Link]("links"),
	},
	{
		Type:       QuotationType,
		Table:      "quotations",
		JoinTable:  "quotation_tags",
		JoinColumn: "quotation_id",
		Plural:     "Quotations",
		Load:       loader[Quotation]("quotations"),
	},
}

func KindOf(itemType string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Type == itemType {
			return k, true
		}
	}
	return Kind{}, false
}

// Tables lists the content tables in Kinds order.
func Tables() []string {
	tables := make([]string, len(Kinds))
	for i, k := range Kinds {
		tables[i] = k.Table
	}
	return tables
}

func orderedTags(db *gorm.DB) *gorm.DB {
	return db.Order("tags.tag")
}

func loader[T any, PT interface {
	*T
	Item
}](table string) func(*gorm.DB, []uint) ([]Item, error) {
	return func(db *gorm.DB, ids []uint) ([]Item, error) {
		if len(ids) == 0 {
			return nil, nil
		}
		var rows []T
		if err := db.Preload("Tags", orderedTags).Where(table+".id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		items := make([]Item, len(rows))
		for i := range rows {
			items[i] = PT(&rows[i])
		}
		return items, nil
	}
}

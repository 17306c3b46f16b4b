package models

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"weblog/fulltext"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// User is the single author of the site.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"unique;not null" json:"email"`
	Name         string `json:"name"`
	PasswordHash string `gorm:"not null" json:"-"` // json:"-" prevents password from being exposed in API
}

type Tag struct {
	ID  uint   `gorm:"primaryKey" json:"id"`
	Tag string `gorm:"size:64;uniqueIndex;not null" json:"tag"`
}

type Series struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:300;not null" json:"title"`
	Slug        string `gorm:"size:64;not null;index" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
}

// Base holds the columns shared by every content type.
type Base struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	CreatedTime time.Time         `gorm:"not null;index" json:"created_time"`
	Slug        string            `gorm:"size:64;not null;index" json:"slug"`
	Latitude    *float64          `json:"latitude,omitempty"`
	Longitude   *float64          `json:"longitude,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	// written only by fulltext.Dialect.Refresh, column added by Dialect.Migrate
	SearchDocument *string `gorm:"column:search_document;->;-:migration" json:"-"`
}

func (b *Base) ItemID() uint       { return b.ID }
func (b *Base) Created() time.Time { return b.CreatedTime }

func (b *Base) normalizeTimes() {
	if b.CreatedTime.IsZero() {
		b.CreatedTime = time.Now()
	}
	b.CreatedTime = b.CreatedTime.UTC()
	if b.Metadata == nil {
		b.Metadata = datatypes.JSONMap{}
	}
}

type Post struct {
	Base
	Title    string    `gorm:"size:300;uniqueIndex;not null" json:"title"`
	Body     string    `gorm:"type:text" json:"body"`
	PubTime  time.Time `gorm:"not null;index" json:"pub_time"`
	Status   string    `gorm:"size:16;not null;index" json:"status"`
	Views    uint      `gorm:"not null;default:0" json:"views"`
	AuthorID uint      `gorm:"not null;index" json:"author_id"`
	Author   *User     `json:"author,omitempty"`
	SeriesID *uint     `gorm:"index" json:"series_id,omitempty"`
	Series   *Series   `json:"series,omitempty"`
	Tags     []Tag     `gorm:"many2many:post_tags" json:"tags"`
}

func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.normalizeTimes()
	if p.PubTime.IsZero() {
		p.PubTime = p.CreatedTime
	}
	p.PubTime = p.PubTime.UTC()
	if p.Status == "" {
		p.Status = StatusPublished
	}
	return nil
}

func (p *Post) ItemType() string { return PostType }
func (p *Post) TagList() []Tag   { return p.Tags }
func (p *Post) SetTags(t []Tag)  { p.Tags = t }

func (p *Post) IndexComponents() fulltext.Components {
	return fulltext.Components{
		A: p.Title,
		B: tagNames(p.Tags),
		C: PlainText(RenderMarkdown(p.Body)),
	}
}

func (p *Post) Published() bool {
	return p.Status == StatusPublished
}

type Link struct {
	Base
	URL        string  `gorm:"size:1000;not null" json:"url"`
	Title      string  `gorm:"size:255;not null" json:"title"`
	ViaURL     *string `gorm:"size:1000" json:"via_url,omitempty"`
	ViaTitle   *string `gorm:"size:255" json:"via_title,omitempty"`
	Commentary string  `gorm:"type:text" json:"commentary"`
	Tags       []Tag   `gorm:"many2many:link_tags" json:"tags"`
}

func (l *Link) BeforeSave(tx *gorm.DB) error {
	l.normalizeTimes()
	return nil
}

func (l *Link) ItemType() string { return LinkType }
func (l *Link) TagList() []Tag   { return l.Tags }
func (l *Link) SetTags(t []Tag)  { l.Tags = t }

func (l *Link) IndexComponents() fulltext.Components {
	secondary := []string{l.Commentary, l.Domain()}
	if l.ViaTitle != nil {
		secondary = append(secondary, *l.ViaTitle)
	}
	return fulltext.Components{
		A: l.Title,
		B: tagNames(l.Tags),
		C: strings.Join(secondary, " "),
	}
}

// Domain is the host part of the link URL, "" when the URL has none.
func (l *Link) Domain() string {
	parts := strings.SplitN(l.URL, "/", 4)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

func (l *Link) WordCount() string {
	count := len(strings.Fields(l.Commentary))
	if count == 1 {
		return "1 word"
	}
	return strconv.Itoa(count) + " words"
}

type Quotation struct {
	Base
	Quotation string  `gorm:"type:text;not null" json:"quotation"`
	Source    string  `gorm:"size:255;not null" json:"source"`
	SourceURL *string `gorm:"size:1000" json:"source_url,omitempty"`
	Tags      []Tag   `gorm:"many2many:quotation_tags" json:"tags"`
}

func (q *Quotation) BeforeSave(tx *gorm.DB) error {
	q.normalizeTimes()
	return nil
}

func (q *Quotation) ItemType() string { return QuotationType }
func (q *Quotation) TagList() []Tag   { return q.Tags }
func (q *Quotation) SetTags(t []Tag)  { q.Tags = t }

func (q *Quotation) IndexComponents() fulltext.Components {
	return fulltext.Components{
		A: q.Quotation,
		B: tagNames(q.Tags),
		C: q.Source,
	}
}

func tagNames(tags []Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Tag
	}
	return strings.Join(names, " ")
}

// TagSummary lists an item's tags separated by spaces.
func TagSummary(item Item) string {
	return tagNames(item.TagList())
}

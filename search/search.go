// Package search runs ranked full-text queries across every content type and
// computes the facet counts shown alongside the results.
package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/content"
	"weblog/fulltext"
	"weblog/models"
)

// MaxTagFacets bounds the tag facet list.
const MaxTagFacets = 40

// Params are the raw query string values of a search request.
type Params struct {
	Q           string
	Tags        []string
	ExcludeTags []string
	Type        string
	Year        string
	Month       string
	Page        string
}

// Row is the lightweight projection every content type is unioned into.
type Row struct {
	PK          uint             `gorm:"column:pk" json:"pk"`
	Type        string           `gorm:"column:type" json:"type"`
	CreatedTime models.Timestamp `gorm:"column:created_time" json:"created_time"`
	Rank        *float64         `gorm:"column:rank" json:"rank,omitempty"`
}

func (r Row) RefType() string { return r.Type }
func (r Row) RefPK() uint     { return r.PK }

// Hit is one result. Item is nil when the row vanished before it was loaded.
type Hit struct {
	Type string      `json:"type"`
	Rank *float64    `json:"rank,omitempty"`
	Item models.Item `json:"item"`
	Row  Row         `json:"-"`
}

type TypeCount struct {
	Type string `json:"type"`
	N    int64  `json:"n"`
}

type TagCount struct {
	Tag string `json:"tag"`
	N   int64  `json:"n"`
}

type YearCount struct {
	Year int   `json:"year"`
	N    int64 `json:"n"`
}

type MonthCount struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	N     int64 `json:"n"`
}

// Selected summarises the filters that took effect.
type Selected struct {
	Tags      []string `json:"tags,omitempty"`
	Type      string   `json:"type,omitempty"`
	Year      string   `json:"year,omitempty"`
	Month     string   `json:"month,omitempty"`
	MonthName string   `json:"month_name,omitempty"`
}

func (s Selected) Empty() bool {
	return len(s.Tags) == 0 && s.Type == "" && s.Year == "" && s.Month == ""
}

type Result struct {
	Q            string        `json:"q"`
	Title        string        `json:"title"`
	Hits         []Hit         `json:"results"`
	Total        int64         `json:"total"`
	Page         common.Page   `json:"page"`
	TypeCounts   []TypeCount   `json:"type_counts"`
	TagCounts    []TagCount    `json:"tag_counts"`
	YearCounts   []YearCount   `json:"year_counts"`
	MonthCounts  []MonthCount  `json:"month_counts"`
	Selected     Selected      `json:"selected"`
	ExcludedTags []string      `json:"excluded_tags"`
	Duration     time.Duration `json:"duration"`
}

type Engine struct {
	db      *gorm.DB
	dialect fulltext.Dialect
}

func NewEngine(db *gorm.DB, dialect fulltext.Dialect) *Engine {
	return &Engine{db: db, dialect: dialect}
}

// filters are the parsed, validated parts of Params.
type filters struct {
	q           string
	tags        []string
	excludeTags []string
	year        int
	month       int
}

func parseYear(raw string) (int, bool) {
	if !isDigits(raw) {
		return 0, false
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 9999 {
		return 0, false
	}
	return year, true
}

func parseMonth(raw string) (int, bool) {
	if !isDigits(raw) {
		return 0, false
	}
	month, err := strconv.Atoi(raw)
	if err != nil || month < 1 || month > 12 {
		return 0, false
	}
	return month, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// filtered is the unpaginated query of one content type with every filter
// applied. It returns a fresh statement on each call.
func (e *Engine) filtered(db *gorm.DB, kind models.Kind, f filters) *gorm.DB {
	t := kind.Table
	created := t + ".created_time"

	qs := db.Table(t)
	if kind.Visible != "" {
		qs = qs.Where(kind.Visible)
	}
	if f.year != 0 {
		qs = qs.Where(e.dialect.Year(created)+" = ?", f.year)
	}
	if f.month != 0 {
		qs = qs.Where(e.dialect.Month(created)+" = ?", f.month)
	}
	if f.q != "" {
		qs = qs.Where(e.dialect.Match(t+"."+fulltext.DocumentColumn), f.q)
	}

	tagged := "(SELECT " + kind.JoinTable + "." + kind.JoinColumn +
		" FROM " + kind.JoinTable + " JOIN tags ON tags.id = " + kind.JoinTable + ".tag_id" +
		" WHERE tags.tag = ?)"
	for _, tag := range f.tags {
		qs = qs.Where(t+".id IN "+tagged, tag)
	}
	for _, tag := range f.excludeTags {
		qs = qs.Where(t+".id NOT IN "+tagged, tag)
	}
	return qs
}

// projection selects the union columns from a filtered query.
func (e *Engine) projection(db *gorm.DB, kind models.Kind, f filters) *gorm.DB {
	t := kind.Table
	cols := t + ".id AS pk, '" + kind.Type + "' AS type, " + t + ".created_time AS created_time"
	if f.q == "" {
		return e.filtered(db, kind, f).Select(cols)
	}
	rank := e.dialect.Rank(t + "." + fulltext.DocumentColumn)
	return e.filtered(db, kind, f).Select(cols+", "+rank+" AS rank", f.q)
}

func union(db *gorm.DB, parts []*gorm.DB) *gorm.DB {
	placeholders := make([]string, len(parts))
	vars := make([]interface{}, len(parts))
	for i, p := range parts {
		placeholders[i] = "?"
		vars[i] = p
	}
	return db.Table("("+strings.Join(placeholders, " UNION ALL ")+") AS results", vars...)
}

// Search evaluates p. An invalid page is common.ErrNotFound; every other bad
// input narrows or widens the result silently.
func (e *Engine) Search(ctx context.Context, p Params) (*Result, error) {
	start := time.Now()
	db := e.db.WithContext(ctx)

	f := filters{
		q:           strings.TrimSpace(p.Q),
		tags:        nonBlank(p.Tags),
		excludeTags: nonBlank(p.ExcludeTags),
	}
	sel := Selected{Tags: f.tags, Type: p.Type}
	if year, ok := parseYear(p.Year); ok {
		f.year = year
		sel.Year = p.Year
		if month, ok := parseMonth(p.Month); ok {
			f.month = month
			sel.Month = p.Month
			sel.MonthName = time.Month(month).String()
		}
	}

	var kinds []models.Kind
	for _, kind := range models.Kinds {
		if p.Type == "" || p.Type == kind.Type {
			kinds = append(kinds, kind)
		}
	}

	res := &Result{
		Q:            f.q,
		Selected:     sel,
		ExcludedTags: f.excludeTags,
		TypeCounts:   []TypeCount{},
		TagCounts:    []TagCount{},
		YearCounts:   []YearCount{},
		MonthCounts:  []MonthCount{},
		Hits:         []Hit{},
	}
	res.Title = Title(f.q, sel)

	if err := e.facets(db, kinds, f, res); err != nil {
		return nil, err
	}

	var parts []*gorm.DB
	for _, kind := range kinds {
		parts = append(parts, e.projection(db, kind, f))
	}
	if len(parts) > 0 {
		if err := union(db, parts).Count(&res.Total).Error; err != nil {
			return nil, errors.Wrap(err, "count results")
		}
	}

	page, err := common.Paginate(int(res.Total), p.Page, common.PageSize)
	if err != nil {
		return nil, err
	}
	res.Page = page

	if res.Total > 0 {
		order := "created_time DESC, type ASC, pk ASC"
		if f.q != "" {
			order = "rank DESC, " + order
		}
		var rows []Row
		err := union(db, parts).
			Order(order).
			Limit(page.PerPage).
			Offset(page.Offset()).
			Scan(&rows).Error
		if err != nil {
			return nil, errors.Wrap(err, "fetch result page")
		}

		loaded, err := content.LoadMixed(ctx, db, rows)
		if err != nil {
			return nil, err
		}
		for i, l := range loaded {
			hit := Hit{Type: rows[i].Type, Rank: rows[i].Rank, Row: rows[i]}
			if l != nil {
				hit.Item = l.Item
			}
			res.Hits = append(res.Hits, hit)
		}
	}

	res.Duration = time.Since(start)
	common.Log.WithFields(logrus.Fields{
		"q":        f.q,
		"total":    res.Total,
		"page":     page.Number,
		"duration": res.Duration,
	}).Debug("search")
	return res, nil
}

// facets fills the type, tag, year and month counts from the unpaginated
// per-type queries.
func (e *Engine) facets(db *gorm.DB, kinds []models.Kind, f filters, res *Result) error {
	tagCounts := map[string]int64{}
	yearCounts := map[int]int64{}
	monthCounts := map[int]int64{}

	for _, kind := range kinds {
		t := kind.Table
		created := t + ".created_time"

		var n int64
		if err := e.filtered(db, kind, f).Count(&n).Error; err != nil {
			return errors.Wrapf(err, "count %s", t)
		}
		if n == 0 {
			continue
		}
		res.TypeCounts = append(res.TypeCounts, TypeCount{Type: kind.Type, N: n})

		var tags []TagCount
		err := e.filtered(db, kind, f).
			Joins("JOIN " + kind.JoinTable + " ON " + kind.JoinTable + "." + kind.JoinColumn + " = " + t + ".id").
			Joins("JOIN tags ON tags.id = " + kind.JoinTable + ".tag_id").
			Select("tags.tag AS tag, COUNT(*) AS n").
			Group("tags.tag").
			Scan(&tags).Error
		if err != nil {
			return errors.Wrapf(err, "count tags of %s", t)
		}
		for _, tc := range tags {
			tagCounts[tc.Tag] += tc.N
		}

		var years []YearCount
		err = e.filtered(db, kind, f).
			Select(e.dialect.Year(created) + " AS year, COUNT(*) AS n").
			Group(e.dialect.Year(created)).
			Scan(&years).Error
		if err != nil {
			return errors.Wrapf(err, "count years of %s", t)
		}
		for _, yc := range years {
			yearCounts[yc.Year] += yc.N
		}

		if f.year == 0 {
			continue
		}
		var months []MonthCount
		err = e.filtered(db, kind, f).
			Select(e.dialect.Month(created) + " AS month, COUNT(*) AS n").
			Group(e.dialect.Month(created)).
			Scan(&months).Error
		if err != nil {
			return errors.Wrapf(err, "count months of %s", t)
		}
		for _, mc := range months {
			monthCounts[mc.Month] += mc.N
		}
	}

	// kinds are in registry order, so ties keep it
	sort.SliceStable(res.TypeCounts, func(i, j int) bool {
		return res.TypeCounts[i].N > res.TypeCounts[j].N
	})

	for tag, n := range tagCounts {
		res.TagCounts = append(res.TagCounts, TagCount{Tag: tag, N: n})
	}
	sort.Slice(res.TagCounts, func(i, j int) bool {
		a, b := res.TagCounts[i], res.TagCounts[j]
		if a.N != b.N {
			return a.N > b.N
		}
		return a.Tag < b.Tag
	})
	if len(res.TagCounts) > MaxTagFacets {
		res.TagCounts = res.TagCounts[:MaxTagFacets]
	}

	for year, n := range yearCounts {
		res.YearCounts = append(res.YearCounts, YearCount{Year: year, N: n})
	}
	sort.Slice(res.YearCounts, func(i, j int) bool {
		return res.YearCounts[i].Year < res.YearCounts[j].Year
	})

	for month, n := range monthCounts {
		res.MonthCounts = append(res.MonthCounts, MonthCount{Year: f.year, Month: month, N: n})
	}
	sort.Slice(res.MonthCounts, func(i, j int) bool {
		return res.MonthCounts[i].Month < res.MonthCounts[j].Month
	})
	return nil
}

// Title describes the active filters, e.g. “rust” in items tagged storage.
func Title(q string, sel Selected) string {
	noun := models.DefaultNoun
	if kind, ok := models.KindOf(sel.Type); ok {
		noun = kind.Plural
	}

	title := noun
	if q != "" {
		title = "“" + q + "” in " + strings.ToLower(noun)
	}
	if len(sel.Tags) > 0 {
		title += " tagged " + strings.Join(sel.Tags, ", ")
	}

	var datebits []string
	if sel.MonthName != "" {
		datebits = append(datebits, sel.MonthName)
	}
	if sel.Year != "" {
		datebits = append(datebits, sel.Year)
	}
	if len(datebits) > 0 {
		title += " in " + strings.Join(datebits, ", ")
	}

	if q == "" && sel.Empty() {
		title = "Search"
	}
	return title
}

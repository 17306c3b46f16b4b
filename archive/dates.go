package archive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/models"
)

type MonthSummary struct {
	Month  int              `json:"month"`
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
	Posts  []models.Post    `json:"posts"`
}

type YearArchive struct {
	Year   int            `json:"year"`
	Months []MonthSummary `json:"months"`
}

type monthCount struct {
	Month int
	N     int64
}

func validYear(year int) bool {
	return year >= 1 && year <= 9999
}

// YearArchive summarises the months of year that have any public item, with
// per-type counts and the posts of each month in creation order.
func (a *Archive) YearArchive(ctx context.Context, year int) (*YearArchive, error) {
	if !validYear(year) {
		return nil, errors.Wrapf(common.ErrNotFound, "year %d", year)
	}
	db := a.db.WithContext(ctx)

	months := map[int]*MonthSummary{}
	summary := func(m int) *MonthSummary {
		if months[m] == nil {
			months[m] = &MonthSummary{Month: m, Counts: map[string]int64{}, Posts: []models.Post{}}
		}
		return months[m]
	}

	for _, kind := range models.Kinds {
		created := kind.Table + ".created_time"
		var rows []monthCount
		err := visible(db, kind).
			Where(a.dialect.Year(created)+" = ?", year).
			Select(a.dialect.Month(created) + " AS month, COUNT(*) AS n").
			Group(a.dialect.Month(created)).
			Scan(&rows).Error
		if err != nil {
			return nil, errors.Wrapf(err, "count months of %s", kind.Table)
		}
		for _, r := range rows {
			s := summary(r.Month)
			s.Counts[kind.Type] = r.N
			s.Total += r.N
		}
	}

	start, end := yearRange(year)
	var posts []models.Post
	err := db.Preload("Tags", orderedTags).
		Where("status = ? AND created_time >= ? AND created_time < ?", models.StatusPublished, start, end).
		Order("created_time, id").
		Find(&posts).Error
	if err != nil {
		return nil, errors.Wrap(err, "load posts")
	}
	for _, p := range posts {
		s := summary(int(p.CreatedTime.Month()))
		s.Posts = append(s.Posts, p)
	}

	ya := &YearArchive{Year: year, Months: []MonthSummary{}}
	for m := 1; m <= 12; m++ {
		if s, ok := months[m]; ok {
			ya.Months = append(ya.Months, *s)
		}
	}
	return ya, nil
}

type MonthArchive struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Items []Entry `json:"items"`
}

// MonthArchive lists every public item of the month in creation order. An
// empty month is not an error.
func (a *Archive) MonthArchive(ctx context.Context, year, month int) (*MonthArchive, error) {
	if !validYear(year) || month < 1 || month > 12 {
		return nil, errors.Wrapf(common.ErrNotFound, "month %d-%d", year, month)
	}
	db := a.db.WithContext(ctx)

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	entries := []Entry{}
	for _, kind := range models.Kinds {
		created := kind.Table + ".created_time"
		var ids []uint
		err := visible(db, kind).
			Where(created+" >= ? AND "+created+" < ?", start, end).
			Pluck(kind.Table+".id", &ids).Error
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", kind.Table)
		}
		items, err := kind.Load(db, ids)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", kind.Table)
		}
		entries = append(entries, entriesOf(items)...)
	}
	sortEntries(entries, false)

	return &MonthArchive{Year: year, Month: month, Items: entries}, nil
}

func yearRange(year int) (time.Time, time.Time) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

// dayRange rejects dates that time.Date would normalise, such as February 30.
func dayRange(year, month, day int) (time.Time, time.Time, error) {
	start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if !validYear(year) || start.Year() != year || int(start.Month()) != month || start.Day() != day {
		return time.Time{}, time.Time{}, errors.Wrapf(common.ErrNotFound, "date %d-%d-%d", year, month, day)
	}
	return start, start.AddDate(0, 0, 1), nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(common.ErrNotFound, what)
	}
	return errors.Wrap(err, what)
}

// Post finds a published post by publication date and slug.
func (a *Archive) Post(ctx context.Context, year, month, day int, slug string) (*models.Post, error) {
	start, end, err := dayRange(year, month, day)
	if err != nil {
		return nil, err
	}
	var post models.Post
	err = a.db.WithContext(ctx).
		Preload("Tags", orderedTags).Preload("Series").Preload("Author").
		Where("slug = ? AND status = ? AND pub_time >= ? AND pub_time < ?", slug, models.StatusPublished, start, end).
		Order("id").
		First(&post).Error
	if err != nil {
		return nil, notFound(err, "post "+slug)
	}
	return &post, nil
}

// Link finds a link by creation date and slug.
func (a *Archive) Link(ctx context.Context, year, month, day int, slug string) (*models.Link, error) {
	start, end, err := dayRange(year, month, day)
	if err != nil {
		return nil, err
	}
	var link models.Link
	err = a.db.WithContext(ctx).
		Preload("Tags", orderedTags).
		Where("slug = ? AND created_time >= ? AND created_time < ?", slug, start, end).
		Order("id").
		First(&link).Error
	if err != nil {
		return nil, notFound(err, "link "+slug)
	}
	return &link, nil
}

// Quotation finds a quotation by creation date and slug.
func (a *Archive) Quotation(ctx context.Context, year, month, day int, slug string) (*models.Quotation, error) {
	start, end, err := dayRange(year, month, day)
	if err != nil {
		return nil, err
	}
	var q models.Quotation
	err = a.db.WithContext(ctx).
		Preload("Tags", orderedTags).
		Where("slug = ? AND created_time >= ? AND created_time < ?", slug, start, end).
		Order("id").
		First(&q).Error
	if err != nil {
		return nil, notFound(err, "quotation "+slug)
	}
	return &q, nil
}

func orderedTags(db *gorm.DB) *gorm.DB {
	return db.Order("tags.tag")
}

type SeriesPage struct {
	Series models.Series `json:"series"`
	Posts  []models.Post `json:"posts"`
}

// Series returns a series with its published posts by publication time.
func (a *Archive) Series(ctx context.Context, slug string) (*SeriesPage, error) {
	db := a.db.WithContext(ctx)

	var s models.Series
	if err := db.Where("slug = ?", slug).Order("id").First(&s).Error; err != nil {
		return nil, notFound(err, "series "+slug)
	}

	posts := []models.Post{}
	err := db.Preload("Tags", orderedTags).
		Where("series_id = ? AND status = ?", s.ID, models.StatusPublished).
		Order("pub_time, id").
		Find(&posts).Error
	if err != nil {
		return nil, errors.Wrap(err, "load series posts")
	}
	return &SeriesPage{Series: s, Posts: posts}, nil
}

type Home struct {
	Posts      []models.Post      `json:"posts"`
	Links      []models.Link      `json:"links"`
	Quotations []models.Quotation `json:"quotations"`
}

// Latest returns the newest n public items of each type.
func (a *Archive) Latest(ctx context.Context, n int) (*Home, error) {
	db := a.db.WithContext(ctx)
	home := &Home{Posts: []models.Post{}, Links: []models.Link{}, Quotations: []models.Quotation{}}

	err := db.Preload("Tags", orderedTags).
		Where("status = ?", models.StatusPublished).
		Order("created_time DESC, id DESC").Limit(n).
		Find(&home.Posts).Error
	if err != nil {
		return nil, errors.Wrap(err, "latest posts")
	}
	err = db.Preload("Tags", orderedTags).
		Order("created_time DESC, id DESC").Limit(n).
		Find(&home.Links).Error
	if err != nil {
		return nil, errors.Wrap(err, "latest links")
	}
	err = db.Preload("Tags", orderedTags).
		Order("created_time DESC, id DESC").Limit(n).
		Find(&home.Quotations).Error
	if err != nil {
		return nil, errors.Wrap(err, "latest quotations")
	}
	return home, nil
}

package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/content"
	"weblog/database"
	"weblog/models"
)

type fixture struct {
	db     *gorm.DB
	store  *content.Store
	engine *Engine
	user   *models.User
}

func setupTest(t *testing.T) *fixture {
	db, dialect, err := common.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, dialect))

	user := &models.User{Email: "author@example.com", PasswordHash: "hash"}
	require.NoError(t, db.Create(user).Error)

	return &fixture{
		db:     db,
		store:  content.NewStore(db, dialect),
		engine: NewEngine(db, dialect),
		user:   user,
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func (f *fixture) post(t *testing.T, title string, created time.Time, tags ...string) *models.Post {
	p := &models.Post{Base: models.Base{CreatedTime: created}, Title: title, AuthorID: f.user.ID}
	require.NoError(t, f.store.Save(context.Background(), p, tags))
	return p
}

func (f *fixture) link(t *testing.T, title, commentary string, created time.Time, tags ...string) *models.Link {
	l := &models.Link{
		Base:       models.Base{CreatedTime: created},
		URL:        "https://example.com/" + title,
		Title:      title,
		Commentary: commentary,
	}
	require.NoError(t, f.store.Save(context.Background(), l, tags))
	return l
}

func (f *fixture) quote(t *testing.T, text string, created time.Time, tags ...string) *models.Quotation {
	q := &models.Quotation{Base: models.Base{CreatedTime: created}, Quotation: text, Source: "Anon"}
	require.NoError(t, f.store.Save(context.Background(), q, tags))
	return q
}

func (f *fixture) search(t *testing.T, p Params) *Result {
	res, err := f.engine.Search(context.Background(), p)
	require.NoError(t, err)
	return res
}

func TestSearch_YearScenario(t *testing.T) {
	f := setupTest(t)
	f.post(t, "January notes", day(2024, 1, 10), "go")
	f.post(t, "March notes", day(2024, 3, 10), "go")
	f.post(t, "June notes", day(2024, 6, 10), "rust")
	f.post(t, "Old notes", day(2023, 6, 10), "go")

	res := f.search(t, Params{Year: "2024"})

	assert.Equal(t, int64(3), res.Total)
	assert.Len(t, res.Hits, 3)
	assert.Equal(t, []TypeCount{{Type: models.PostType, N: 3}}, res.TypeCounts)
	assert.Equal(t, []TagCount{{Tag: "go", N: 2}, {Tag: "rust", N: 1}}, res.TagCounts)
	assert.Equal(t, []MonthCount{
		{Year: 2024, Month: 1, N: 1},
		{Year: 2024, Month: 3, N: 1},
		{Year: 2024, Month: 6, N: 1},
	}, res.MonthCounts)
	assert.Equal(t, []YearCount{{Year: 2024, N: 3}}, res.YearCounts)
	assert.Equal(t, "Items in 2024", res.Title)

	// newest first
	assert.Equal(t, "June notes", res.Hits[0].Item.(*models.Post).Title)
	assert.Equal(t, "January notes", res.Hits[2].Item.(*models.Post).Title)
	assert.Nil(t, res.Hits[0].Rank)
}

func TestSearch_PageRowsCarryCreatedTime(t *testing.T) {
	f := setupTest(t)
	created := day(2024, 2, 14)
	f.post(t, "Learning rust", created, "rust")

	for _, p := range []Params{{}, {Q: "rust"}} {
		res, err := f.engine.Search(context.Background(), p)
		require.NoError(t, err, "%+v", p)
		require.Equal(t, int64(1), res.Total)
		require.Len(t, res.Hits, 1)
		assert.True(t, created.Equal(res.Hits[0].Row.CreatedTime.Time), "%+v", p)
	}
}

func TestSearch_NoYearHasNoMonthFacets(t *testing.T) {
	f := setupTest(t)
	f.post(t, "One", day(2023, 1, 1))
	f.post(t, "Two", day(2024, 2, 1))

	res := f.search(t, Params{Month: "2"})

	assert.Equal(t, int64(2), res.Total)
	assert.Empty(t, res.MonthCounts)
	assert.Equal(t, []YearCount{{Year: 2023, N: 1}, {Year: 2024, N: 1}}, res.YearCounts)
	assert.Equal(t, "Search", res.Title)
}

func TestSearch_MonthFilter(t *testing.T) {
	f := setupTest(t)
	f.post(t, "One", day(2024, 3, 1))
	f.link(t, "two", "", day(2024, 3, 20))
	f.quote(t, "Three", day(2024, 4, 1))

	res := f.search(t, Params{Year: "2024", Month: "03"})

	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, "Items in March, 2024", res.Title)
	assert.Equal(t, "March", res.Selected.MonthName)
}

func TestSearch_InvalidFiltersIgnored(t *testing.T) {
	f := setupTest(t)
	f.post(t, "One", day(2024, 3, 1))
	f.link(t, "two", "", day(2021, 3, 20))

	for _, p := range []Params{
		{Year: "abc"},
		{Year: "1999"},
		{Year: "20x4"},
		{Year: "-2024"},
		{Month: "3"},
	} {
		res := f.search(t, p)
		assert.Equal(t, int64(2), res.Total, "%+v", p)
		assert.Empty(t, res.Selected.Year)
		assert.Empty(t, res.MonthCounts)
	}

	res := f.search(t, Params{Year: "2024", Month: "13"})
	assert.Equal(t, int64(1), res.Total)
	assert.Empty(t, res.Selected.Month)
	assert.Equal(t, "Items in 2024", res.Title)
}

func TestSearch_UnknownTypeAndTagAreEmpty(t *testing.T) {
	f := setupTest(t)
	f.post(t, "One", day(2024, 3, 1), "go")

	res := f.search(t, Params{Type: "entry"})
	assert.Equal(t, int64(0), res.Total)
	assert.Empty(t, res.Hits)
	assert.Empty(t, res.TypeCounts)
	assert.Equal(t, 1, res.Page.Number)

	res = f.search(t, Params{Tags: []string{"nonexistent"}})
	assert.Equal(t, int64(0), res.Total)
	assert.Equal(t, "Items tagged nonexistent", res.Title)
}

func TestSearch_TypeFilter(t *testing.T) {
	f := setupTest(t)
	f.post(t, "Rust post", day(2024, 3, 1), "rust")
	f.link(t, "rustlink", "about rust", day(2024, 3, 2), "rust")

	res := f.search(t, Params{Type: models.LinkType, Q: "rust"})

	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, []TypeCount{{Type: models.LinkType, N: 1}}, res.TypeCounts)
	assert.Equal(t, "“rust” in links", res.Title)
	assert.IsType(t, &models.Link{}, res.Hits[0].Item)
}

func TestSearch_TagFilters(t *testing.T) {
	f := setupTest(t)
	f.post(t, "Both", day(2024, 1, 1), "go", "sqlite")
	f.post(t, "Go only", day(2024, 1, 2), "go")
	f.quote(t, "Quoted", day(2024, 1, 3), "go", "sqlite")

	res := f.search(t, Params{Tags: []string{"go", "sqlite"}})
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, "Items tagged go, sqlite", res.Title)

	res = f.search(t, Params{Tags: []string{"go"}, ExcludeTags: []string{"sqlite"}})
	require.Equal(t, int64(1), res.Total)
	assert.Equal(t, "Go only", res.Hits[0].Item.(*models.Post).Title)
	assert.Equal(t, []string{"sqlite"}, res.ExcludedTags)
}

func TestSearch_RankOrdering(t *testing.T) {
	f := setupTest(t)
	f.link(t, "unrelated", "a long note mentioning rust once", day(2024, 5, 1))
	f.post(t, "Rust in production", day(2023, 1, 1), "rust")
	f.quote(t, "Nothing to see", day(2024, 6, 1))

	res := f.search(t, Params{Q: "rust"})

	require.Equal(t, int64(2), res.Total)
	assert.Equal(t, models.PostType, res.Hits[0].Type)
	assert.Equal(t, models.LinkType, res.Hits[1].Type)
	require.NotNil(t, res.Hits[0].Rank)
	require.NotNil(t, res.Hits[1].Rank)
	assert.Greater(t, *res.Hits[0].Rank, *res.Hits[1].Rank)
	assert.Equal(t, "“rust” in items", res.Title)
}

func TestSearch_WebSearchSyntax(t *testing.T) {
	f := setupTest(t)
	f.post(t, "Storage engines in Rust", day(2024, 1, 1))
	f.post(t, "Rust web frameworks", day(2024, 1, 2))
	f.quote(t, "Engines of storage", day(2024, 1, 3))

	assert.Equal(t, int64(2), f.search(t, Params{Q: "rust"}).Total)
	assert.Equal(t, int64(1), f.search(t, Params{Q: `"storage engines"`}).Total)
	assert.Equal(t, int64(2), f.search(t, Params{Q: "storage -web"}).Total)
	assert.Equal(t, int64(3), f.search(t, Params{Q: "frameworks or storage"}).Total)
	assert.Equal(t, int64(0), f.search(t, Params{Q: "the"}).Total)
}

func TestSearch_DraftsHidden(t *testing.T) {
	f := setupTest(t)
	f.post(t, "Published", day(2024, 1, 1), "go")
	draft := &models.Post{Title: "Draft", Status: models.StatusDraft, AuthorID: f.user.ID}
	require.NoError(t, f.store.Save(context.Background(), draft, []string{"go"}))

	res := f.search(t, Params{})
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, []TagCount{{Tag: "go", N: 1}}, res.TagCounts)
}

func seedMany(t *testing.T, f *fixture) {
	// several items share a creation time so the tiebreak decides their order
	for i := 0; i < 25; i++ {
		created := day(2024, time.Month(1+i%12), 1+i%3)
		f.post(t, fmt.Sprintf("Post %d", i), created, "go")
		f.link(t, fmt.Sprintf("link%d", i), "commentary", created, "web")
		if i%2 == 0 {
			f.quote(t, fmt.Sprintf("Quote %d", i), created, "go")
		}
	}
}

func TestSearch_PaginationExhaustive(t *testing.T) {
	f := setupTest(t)
	seedMany(t, f)

	first := f.search(t, Params{})
	require.Equal(t, int64(63), first.Total)
	require.Equal(t, 3, first.Page.NumPages)

	var all []Row
	seen := map[Row]bool{}
	for page := 1; page <= first.Page.NumPages; page++ {
		res := f.search(t, Params{Page: fmt.Sprint(page)})
		for _, hit := range res.Hits {
			require.NotNil(t, hit.Item)
			key := Row{PK: hit.Row.PK, Type: hit.Row.Type}
			assert.False(t, seen[key], "duplicate %v", key)
			seen[key] = true
			all = append(all, hit.Row)
		}
	}
	assert.Len(t, all, 63)

	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if !prev.CreatedTime.Equal(cur.CreatedTime.Time) {
			assert.True(t, prev.CreatedTime.After(cur.CreatedTime.Time))
			continue
		}
		if prev.Type != cur.Type {
			assert.Less(t, prev.Type, cur.Type)
			continue
		}
		assert.Less(t, prev.PK, cur.PK)
	}
}

func TestSearch_InvalidPageNotFound(t *testing.T) {
	f := setupTest(t)
	seedMany(t, f)

	for _, page := range []string{"0", "4", "abc", "-1", "1.5"} {
		_, err := f.engine.Search(context.Background(), Params{Page: page})
		assert.True(t, errors.Is(err, common.ErrNotFound), "page %q", page)
	}

	res := f.search(t, Params{Page: ""})
	assert.Equal(t, 1, res.Page.Number)
}

func TestSearch_UnionCountMatchesTypeCounts(t *testing.T) {
	f := setupTest(t)
	seedMany(t, f)

	for _, p := range []Params{
		{},
		{Tags: []string{"go"}},
		{ExcludeTags: []string{"go"}},
		{Year: "2024", Month: "2"},
		{Q: "commentary"},
		{Q: "post or quote", Tags: []string{"go"}},
		{Type: models.QuotationType},
	} {
		res := f.search(t, p)

		var sum int64
		for _, tc := range res.TypeCounts {
			sum += tc.N
		}
		assert.Equal(t, res.Total, sum, "%+v", p)

		var direct int64
		for _, kind := range models.Kinds {
			if p.Type != "" && p.Type != kind.Type {
				continue
			}
			only := p
			only.Type = kind.Type
			direct += f.search(t, only).Total
		}
		assert.Equal(t, res.Total, direct, "%+v", p)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	f := setupTest(t)
	seedMany(t, f)

	p := Params{Q: "commentary or post", Year: "2024", Page: "2"}
	a := f.search(t, p)
	b := f.search(t, p)

	assert.Equal(t, a.TypeCounts, b.TypeCounts)
	assert.Equal(t, a.TagCounts, b.TagCounts)
	assert.Equal(t, a.YearCounts, b.YearCounts)
	assert.Equal(t, a.MonthCounts, b.MonthCounts)
	require.Equal(t, len(a.Hits), len(b.Hits))
	for i := range a.Hits {
		assert.Equal(t, a.Hits[i].Row, b.Hits[i].Row)
	}
}

func TestSearch_VanishedRowIsNilHit(t *testing.T) {
	f := setupTest(t)
	p := f.post(t, "Doomed", day(2024, 1, 1))

	// a pk that was never stored stands in for a row deleted after the union ran
	rows := []Row{{PK: p.ID, Type: models.PostType}, {PK: p.ID + 100, Type: models.PostType}}
	loaded, err := content.LoadMixed(context.Background(), f.db, rows)
	require.NoError(t, err)
	assert.NotNil(t, loaded[0])
	assert.Nil(t, loaded[1])
}

func TestTitle(t *testing.T) {
	tests := []struct {
		q        string
		sel      Selected
		expected string
	}{
		{"rust", Selected{Tags: []string{"storage"}}, "“rust” in items tagged storage"},
		{"", Selected{}, "Search"},
		{"rust", Selected{}, "“rust” in items"},
		{"", Selected{Type: models.PostType}, "Posts"},
		{"", Selected{Type: "entry"}, "Items"},
		{"go", Selected{Type: models.QuotationType}, "“go” in quotations"},
		{"", Selected{Tags: []string{"a", "b"}}, "Items tagged a, b"},
		{"", Selected{Year: "2024", Month: "5", MonthName: "May"}, "Items in May, 2024"},
		{"x", Selected{Type: models.LinkType, Tags: []string{"t"}, Year: "2024"}, "“x” in links tagged t in 2024"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Title(tt.q, tt.sel))
		})
	}
}

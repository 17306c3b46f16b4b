package content

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/database"
	"weblog/fulltext"
	"weblog/models"
)

func setupTestStore(t *testing.T) (*gorm.DB, *Store) {
	db, dialect, err := common.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, dialect))
	return db, NewStore(db, dialect)
}

func createTestUser(t *testing.T, db *gorm.DB) *models.User {
	user := &models.User{Email: "author@example.com", PasswordHash: "hash"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func matching(t *testing.T, db *gorm.DB, table, q string) []uint {
	var ids []uint
	err := db.Table(table).
		Where(fulltext.SQLite{}.Match(table+"."+fulltext.DocumentColumn), q).
		Order("id").
		Pluck("id", &ids).Error
	require.NoError(t, err)
	return ids
}

func TestNormalizeTags(t *testing.T) {
	names, err := NormalizeTags([]string{" Go ", "sqlite", "go", "", "GO"})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sqlite"}, names)

	_, err = NormalizeTags([]string{"go", "not-valid"})
	assert.True(t, errors.Is(err, ErrInvalidTag))
}

func TestSave_CreatesTagsAndVector(t *testing.T) {
	db, store := setupTestStore(t)
	user := createTestUser(t, db)
	ctx := context.Background()

	post := &models.Post{Title: "Storage engines", Body: "Notes on *B-trees*.", AuthorID: user.ID}
	require.NoError(t, store.Save(ctx, post, []string{"Databases", "rust"}))

	assert.NotZero(t, post.ID)
	assert.Equal(t, models.StatusPublished, post.Status)
	assert.Equal(t, post.CreatedTime, post.PubTime)
	assert.Len(t, post.Tags, 2)

	var count int64
	db.Model(&models.Tag{}).Count(&count)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, []uint{post.ID}, matching(t, db, "posts", "storage"))
	assert.Equal(t, []uint{post.ID}, matching(t, db, "posts", "databases"))
	assert.Equal(t, []uint{post.ID}, matching(t, db, "posts", "trees"))
}

func TestSave_UpdateRefreshesVector(t *testing.T) {
	db, store := setupTestStore(t)
	user := createTestUser(t, db)
	ctx := context.Background()

	post := &models.Post{Title: "Original title", AuthorID: user.ID}
	require.NoError(t, store.Save(ctx, post, []string{"first"}))

	post.Title = "Rewritten heading"
	require.NoError(t, store.Save(ctx, post, []string{"second"}))

	assert.Empty(t, matching(t, db, "posts", "original"))
	assert.Empty(t, matching(t, db, "posts", "first"))
	assert.Equal(t, []uint{post.ID}, matching(t, db, "posts", "rewritten"))
	assert.Equal(t, []uint{post.ID}, matching(t, db, "posts", "second"))

	var reloaded models.Post
	require.NoError(t, db.Preload("Tags").First(&reloaded, post.ID).Error)
	require.Len(t, reloaded.Tags, 1)
	assert.Equal(t, "second", reloaded.Tags[0].Tag)

	// the orphaned tag stays
	var count int64
	db.Model(&models.Tag{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestSave_ClearsTags(t *testing.T) {
	db, store := setupTestStore(t)
	ctx := context.Background()

	link := &models.Link{URL: "https://example.com/x", Title: "Example"}
	require.NoError(t, store.Save(ctx, link, []string{"web"}))
	require.NoError(t, store.Save(ctx, link, nil))

	var reloaded models.Link
	require.NoError(t, db.Preload("Tags").First(&reloaded, link.ID).Error)
	assert.Empty(t, reloaded.Tags)
	assert.Empty(t, matching(t, db, "links", "web"))
}

func TestSave_InvalidTagWritesNothing(t *testing.T) {
	db, store := setupTestStore(t)

	q := &models.Quotation{Quotation: "Simple is better", Source: "Someone"}
	err := store.Save(context.Background(), q, []string{"ok", "not ok"})
	assert.True(t, errors.Is(err, ErrInvalidTag))

	var count int64
	db.Model(&models.Quotation{}).Count(&count)
	assert.Zero(t, count)
}

func TestDelete_KeepsTags(t *testing.T) {
	db, store := setupTestStore(t)
	ctx := context.Background()

	q := &models.Quotation{Quotation: "Less is more", Source: "Mies"}
	require.NoError(t, store.Save(ctx, q, []string{"design"}))
	require.NoError(t, store.Delete(ctx, q))

	var count int64
	db.Model(&models.Quotation{}).Count(&count)
	assert.Zero(t, count)
	db.Table("quotation_tags").Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Tag{}).Count(&count)
	assert.Equal(t, int64(1), count)

	err := store.Delete(ctx, q)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestDeleteSeries_NullsPosts(t *testing.T) {
	db, store := setupTestStore(t)
	user := createTestUser(t, db)
	ctx := context.Background()

	series := &models.Series{Title: "Building a database", Slug: "building-a-database"}
	require.NoError(t, store.SaveSeries(ctx, series))

	post := &models.Post{Title: "Part one", AuthorID: user.ID, SeriesID: &series.ID}
	require.NoError(t, store.Save(ctx, post, nil))

	require.NoError(t, store.DeleteSeries(ctx, series.ID))

	var reloaded models.Post
	require.NoError(t, db.First(&reloaded, post.ID).Error)
	assert.Nil(t, reloaded.SeriesID)

	assert.True(t, errors.Is(store.DeleteSeries(ctx, series.ID), common.ErrNotFound))
}

func TestReindex(t *testing.T) {
	db, store := setupTestStore(t)
	user := createTestUser(t, db)
	ctx := context.Background()

	post := &models.Post{Title: "Indexed", AuthorID: user.ID}
	require.NoError(t, store.Save(ctx, post, []string{"go"}))
	link := &models.Link{URL: "https://go.dev", Title: "Go"}
	require.NoError(t, store.Save(ctx, link, nil))

	require.NoError(t, db.Exec("UPDATE posts SET search_document = NULL").Error)
	assert.Empty(t, matching(t, db, "posts", "indexed"))

	n, err := store.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint{post.ID}, matching(t, db, "posts", "indexed"))
}

func TestOnChange(t *testing.T) {
	db, store := setupTestStore(t)
	user := createTestUser(t, db)
	ctx := context.Background()

	var changes []Change
	store.OnChange(func(c Change) { changes = append(changes, c) })

	post := &models.Post{Base: models.Base{CreatedTime: time.Now()}, Title: "Hello", AuthorID: user.ID}
	require.NoError(t, store.Save(ctx, post, nil))
	require.NoError(t, store.Delete(ctx, post))

	assert.Equal(t, []Change{
		{Type: models.PostType, ID: post.ID},
		{Type: models.PostType, ID: post.ID, Deleted: true},
	}, changes)

	// failed writes notify nobody
	assert.Error(t, store.Save(ctx, &models.Post{Title: "Bad", AuthorID: user.ID}, []string{"a b"}))
	assert.Len(t, changes, 2)
}

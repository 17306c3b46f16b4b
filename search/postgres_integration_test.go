//go:build integration

package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"weblog/common"
	"weblog/content"
	"weblog/database"
	"weblog/models"
)

// setupPostgres runs the fixture against a throwaway PostgreSQL container.
func setupPostgres(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("weblog_test"),
		postgres.WithUsername("weblog"),
		postgres.WithPassword("weblog"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, dialect, err := common.ConnectDb(common.Config{DBDriver: "postgres", DatabaseURL: connStr})
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

func TestPostgres_SearchAndFacets(t *testing.T) {
	f := setupPostgres(t)
	f.post(t, "Indexing with tsvector", day(2024, 1, 10), "postgres", "search")
	f.post(t, "Ranking results", day(2024, 3, 10), "search")
	f.link(t, "Search engines", "a survey of ranking", day(2023, 6, 10), "search")
	f.quote(t, "Searching is half the fun", day(2023, 7, 1))

	res := f.search(t, Params{Q: "ranking"})
	require.Equal(t, int64(2), res.Total)
	for _, hit := range res.Hits {
		require.NotNil(t, hit.Rank)
		assert.Greater(t, *hit.Rank, 0.0)
	}
	// title matches outrank commentary matches
	assert.Equal(t, models.PostType, res.Hits[0].Type)

	res = f.search(t, Params{Tags: []string{"search"}, Year: "2024"})
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, []MonthCount{{Year: 2024, Month: 1, N: 1}, {Year: 2024, Month: 3, N: 1}}, res.MonthCounts)

	res = f.search(t, Params{Q: `"half the fun" -ranking`})
	require.Equal(t, int64(1), res.Total)
	assert.Equal(t, models.QuotationType, res.Hits[0].Type)
}

func TestPostgres_VectorRefreshedOnWrite(t *testing.T) {
	f := setupPostgres(t)
	p := f.post(t, "Before", day(2024, 1, 10))
	assert.Equal(t, int64(0), f.search(t, Params{Q: "after"}).Total)

	p.Title = "After"
	require.NoError(t, f.store.Save(context.Background(), p, []string{"renamed"}))

	res := f.search(t, Params{Q: "after"})
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, int64(1), f.search(t, Params{Q: "renamed"}).Total)
}

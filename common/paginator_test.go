package common

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	page, err := Paginate(65, "", PageSize)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, 3, page.NumPages)
	assert.Equal(t, 0, page.Offset())
	assert.True(t, page.HasNext())
	assert.False(t, page.HasPrevious())

	page, err = Paginate(65, "3", PageSize)
	require.NoError(t, err)
	start, end := page.Bounds()
	assert.Equal(t, 60, start)
	assert.Equal(t, 65, end)
	assert.False(t, page.HasNext())
}

func TestPaginate_EmptyFirstPage(t *testing.T) {
	page, err := Paginate(0, "1", PageSize)
	require.NoError(t, err)
	assert.Equal(t, 1, page.NumPages)

	start, end := page.Bounds()
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
}

func TestPaginate_Invalid(t *testing.T) {
	for _, raw := range []string{"0", "-1", "4", "abc", "1.5", " 2"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Paginate(65, raw, PageSize)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

package common

import (
	"strconv"

	"github.com/pkg/errors"
)

// PageSize is the fixed page length of every listing.
const PageSize = 30

type Page struct {
	Number   int `json:"number"`
	NumPages int `json:"num_pages"`
	Count    int `json:"count"`
	PerPage  int `json:"per_page"`
}

// Paginate validates a raw page number against count items. An empty raw
// value means page 1; anything that is not an integer within range is
// ErrNotFound. An empty result still has a valid first page.
func Paginate(count int, raw string, perPage int) (Page, error) {
	if raw == "" {
		raw = "1"
	}
	number, err := strconv.Atoi(raw)
	if err != nil {
		return Page{}, errors.Wrapf(ErrNotFound, "page %q is not an integer", raw)
	}

	numPages := 1
	if count > 0 {
		numPages = (count + perPage - 1) / perPage
	}
	if number < 1 || number > numPages {
		return Page{}, errors.Wrapf(ErrNotFound, "page %d out of range", number)
	}

	return Page{Number: number, NumPages: numPages, Count: count, PerPage: perPage}, nil
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// Bounds returns the slice indexes of this page within count items.
func (p Page) Bounds() (int, int) {
	start := p.Offset()
	end := start + p.PerPage
	if end > p.Count {
		end = p.Count
	}
	return start, end
}

func (p Page) HasNext() bool {
	return p.Number < p.NumPages
}

func (p Page) HasPrevious() bool {
	return p.Number > 1
}

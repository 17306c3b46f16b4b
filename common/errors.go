package common

import "github.com/pkg/errors"

// ErrNotFound covers bad page numbers, unknown tags and empty archives alike.
// Callers never learn which one it was.
var ErrNotFound = errors.New("not found")

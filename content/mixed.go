package content

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"weblog/models"
)

// Reference is a lightweight row naming one item of any type.
type Reference interface {
	RefType() string
	RefPK() uint
}

type Ref struct {
	Type string `json:"type"`
	PK   uint   `json:"pk"`
}

func (r Ref) RefType() string { return r.Type }
func (r Ref) RefPK() uint     { return r.PK }

// Loaded is a hydrated item together with the reference it was loaded from.
type Loaded[R Reference] struct {
	Item     models.Item
	Original R
}

type refKey struct {
	typ string
	pk  uint
}

// LoadMixed hydrates refs with one batch query per content type. The result
// has the same length and order as refs; a reference whose row no longer
// exists, or whose type is unknown, yields nil at its position.
func LoadMixed[R Reference](ctx context.Context, db *gorm.DB, refs []R) ([]*Loaded[R], error) {
	wanted := map[string][]uint{}
	for _, r := range refs {
		wanted[r.RefType()] = append(wanted[r.RefType()], r.RefPK())
	}

	fetched := map[refKey]models.Item{}
	for _, kind := range models.Kinds {
		ids := wanted[kind.Type]
		if len(ids) == 0 {
			continue
		}
		items, err := kind.Load(db.WithContext(ctx), ids)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", kind.Table)
		}
		for _, item := range items {
			fetched[refKey{kind.Type, item.ItemID()}] = item
		}
	}

	out := make([]*Loaded[R], len(refs))
	for i, r := range refs {
		if item, ok := fetched[refKey{r.RefType(), r.RefPK()}]; ok {
			out[i] = &Loaded[R]{Item: item, Original: r}
		}
	}
	return out, nil
}

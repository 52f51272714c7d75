package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/JaimeStill/labelhub/internal/taxonomy"
)

// Validation errors for selections submitted for persistence.
var (
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrInvalidPath      = errors.New("invalid selection path")
)

// Dedup keeps the first selection for each dimension and path.
func Dedup(sels []Selection) []Selection {
	seen := make(map[string]struct{}, len(sels))
	out := make([]Selection, 0, len(sels))
	for _, s := range sels {
		key := s.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s.clone())
	}
	return out
}

// LeafOnly drops every selection that is a strict prefix of another selection
// in the same dimension. Applying it to its own output changes nothing.
func LeafOnly(sels []Selection) []Selection {
	out := make([]Selection, 0, len(sels))
	for i, s := range sels {
		prefix := false
		for j, other := range sels {
			if i != j && isStrictPrefix(s, other) {
				prefix = true
				break
			}
		}
		if !prefix {
			out = append(out, s.clone())
		}
	}
	return out
}

func isStrictPrefix(s, other Selection) bool {
	return s.DimensionName == other.DimensionName &&
		len(s.PathIDs) < len(other.PathIDs) &&
		slices.Equal(s.PathIDs, other.PathIDs[:len(s.PathIDs)])
}

// Finalize prepares a selection list for storage: empty rows are dropped, the
// rest deduplicated and reduced to leaves, group members put in taxonomy
// order, and names recomputed.
func (e *Engine) Finalize(sels []Selection) []Selection {
	nonEmpty := slices.DeleteFunc(cloneAll(sels), Selection.Empty)
	out := e.canonical(LeafOnly(Dedup(nonEmpty)))
	for i := range out {
		out[i].PathNames = e.Names(out[i])
	}
	return out
}

// Validate checks that every selection names a known dimension and a
// parent-linked path of known categories.
func (e *Engine) Validate(sels []Selection) error {
	for i, s := range sels {
		d, ok := e.tax.Dimension(s.DimensionName)
		if !ok {
			return fmt.Errorf("%w: selection %d: %q", ErrUnknownDimension, i, s.DimensionName)
		}
		if err := validatePath(d, s.PathIDs); err != nil {
			return fmt.Errorf("selection %d: %w", i, err)
		}
	}
	return nil
}

func validatePath(d *taxonomy.Dimension, ids []string) error {
	parent := ""
	for _, id := range ids {
		c, ok := d.Category(id)
		if !ok {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidPath, id)
		}
		if c.Parent != parent {
			return fmt.Errorf("%w: %q is not a child of %q", ErrInvalidPath, id, parent)
		}
		parent = id
	}
	return nil
}

// View is one rendered row of a dimension. In multi-leaf mode a first-dimension
// group folds into a single view whose Leaves lists the checked leaf ids.
type View struct {
	Index     int       `json:"index"`
	Selection Selection `json:"selection"`
	Leaves    []string  `json:"leaves,omitempty"`
}

// Fold lists the selections of dimension for display. Rows that share a group
// prefix collapse into the view of the first of them; later rows are absorbed.
func (e *Engine) Fold(sels []Selection, dimension string) []View {
	g := e.groupDepth(dimension)

	var views []View
	groups := make(map[string]int)
	for i, s := range sels {
		if s.DimensionName != dimension {
			continue
		}
		if g == 0 || len(s.PathIDs) < g {
			views = append(views, View{Index: i, Selection: s.clone()})
			continue
		}

		prefix := Selection{DimensionName: dimension, PathIDs: slices.Clone(s.PathIDs[:g])}
		key := prefix.Key()
		at, ok := groups[key]
		if !ok {
			prefix.PathNames = e.Names(prefix)
			at = len(views)
			groups[key] = at
			views = append(views, View{Index: i, Selection: prefix})
		}
		if len(s.PathIDs) > g {
			views[at].Leaves = append(views[at].Leaves, s.PathIDs[g])
		}
	}
	return views
}

// Views folds sels for every dimension of the engine's taxonomy.
func (e *Engine) Views(sels []Selection) map[string][]View {
	views := make(map[string][]View, len(e.tax.Dimensions))
	for _, d := range e.tax.Dimensions {
		views[d.Name] = e.Fold(sels, d.Name)
	}
	return views
}

// Category returns the root category name of the first selection made in the
// taxonomy's first dimension, or "" when there is none.
func (e *Engine) Category(sels []Selection) string {
	for _, s := range sels {
		if !e.tax.IsFirst(s.DimensionName) {
			continue
		}
		if name, ok := e.tax.First().Root(s.PathIDs); ok {
			return name
		}
	}
	return ""
}

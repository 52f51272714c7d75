// Package selection implements the per-row selection engine: a pure set of
// transforms from a row's current selection list to the next one. The
// annotation and review flows share it; neither keeps engine state of its own.
package selection

import (
	"slices"
	"strings"

	"github.com/JaimeStill/labelhub/internal/taxonomy"
)

// Unselected clears a level instead of choosing a category.
const Unselected = "unselected"

// Selection is one chosen path within a dimension.
type Selection struct {
	DimensionName string   `json:"dimensionName"`
	PathIDs       []string `json:"pathIds"`
	PathNames     []string `json:"pathNames,omitempty"`
}

// Key is the dedup key "dimension|id/id/...".
func (s Selection) Key() string {
	return s.DimensionName + "|" + strings.Join(s.PathIDs, "/")
}

// Empty reports whether the selection has no chosen levels.
func (s Selection) Empty() bool {
	return len(s.PathIDs) == 0
}

func (s Selection) clone() Selection {
	return Selection{
		DimensionName: s.DimensionName,
		PathIDs:       slices.Clone(s.PathIDs),
		PathNames:     slices.Clone(s.PathNames),
	}
}

// Config carries the engine feature flags.
type Config struct {
	// MultiLeaf lets the first dimension hold several leaves under one
	// prefix, edited as a group.
	MultiLeaf bool `json:"multiLeaf"`
	// ExtraRows allows more than one selection row per dimension.
	ExtraRows bool `json:"extraRows"`
}

// Engine applies selection operations against one task's taxonomy.
type Engine struct {
	tax *taxonomy.Taxonomy
	cfg Config
}

// New creates an Engine for tax.
func New(tax *taxonomy.Taxonomy, cfg Config) *Engine {
	return &Engine{tax: tax, cfg: cfg}
}

// Config returns the engine's feature flags.
func (e *Engine) Config() Config {
	return e.cfg
}

// Dimensions lists the taxonomy's dimension names in order.
func (e *Engine) Dimensions() []string {
	out := make([]string, len(e.tax.Dimensions))
	for i, d := range e.tax.Dimensions {
		out[i] = d.Name
	}
	return out
}

// Blank returns one empty selection per dimension, in dimension order.
func (e *Engine) Blank() []Selection {
	out := make([]Selection, 0, len(e.tax.Dimensions))
	for _, d := range e.tax.Dimensions {
		out = append(out, Selection{DimensionName: d.Name, PathIDs: []string{}})
	}
	return out
}

// groupDepth returns the prefix length of multi-leaf groups in dimension, or
// zero when group semantics do not apply.
func (e *Engine) groupDepth(dimension string) int {
	if !e.cfg.MultiLeaf || !e.tax.IsFirst(dimension) {
		return 0
	}
	if d := e.tax.First(); d.MaxDepth >= 2 {
		return d.MaxDepth - 1
	}
	return 0
}

// SetLevel sets level (1-based) of the selection at index to value, discarding
// every deeper level, or truncates to level-1 when value is Unselected. Valid
// levels run from 1 to one past the current path length, bounded by the
// dimension depth; anything else is a no-op, as is a value that is not a child
// of the level above.
//
// In multi-leaf mode, editing a first-dimension group's prefix first removes
// the group's prefix-only row and every full-length row under the old prefix.
func (e *Engine) SetLevel(sels []Selection, index, level int, value string) []Selection {
	out := cloneAll(sels)
	if index < 0 || index >= len(out) {
		return out
	}

	target := out[index]
	d, ok := e.tax.Dimension(target.DimensionName)
	if !ok || level < 1 || level > len(target.PathIDs)+1 || level > d.MaxDepth {
		return out
	}

	if value != Unselected {
		parent := ""
		if level > 1 {
			parent = target.PathIDs[level-2]
		}
		c, ok := d.Category(value)
		if !ok || c.Parent != parent {
			return out
		}
	}

	if g := e.groupDepth(d.Name); g > 0 && level <= g && len(target.PathIDs) >= g {
		prefix := target.PathIDs[:g]
		kept := make([]Selection, 0, len(out))
		for i, s := range out {
			if i != index && s.DimensionName == d.Name && inGroup(s, prefix, g) {
				continue
			}
			if i == index {
				index = len(kept)
			}
			kept = append(kept, s)
		}
		out = kept
		target = out[index]
	}

	if value == Unselected {
		target.PathIDs = target.PathIDs[:level-1]
	} else {
		target.PathIDs = append(target.PathIDs[:level-1], value)
	}
	target.PathNames = names(d, target.PathIDs)
	out[index] = target

	return e.canonical(out)
}

// canonical reorders the full-length members of every first-dimension group
// into taxonomy order, leaving each member in one of the slots the group
// already occupies. Rows outside a group never move.
func (e *Engine) canonical(sels []Selection) []Selection {
	d := e.tax.First()
	g := e.groupDepth(d.Name)
	if g == 0 {
		return sels
	}

	slots := make(map[string][]int)
	var prefixes []string
	for i, s := range sels {
		if s.DimensionName != d.Name || len(s.PathIDs) != g+1 {
			continue
		}
		key := strings.Join(s.PathIDs[:g], "/")
		if _, ok := slots[key]; !ok {
			prefixes = append(prefixes, key)
		}
		slots[key] = append(slots[key], i)
	}

	for _, key := range prefixes {
		idx := slots[key]
		if len(idx) < 2 {
			continue
		}
		members := make([]Selection, len(idx))
		for j, i := range idx {
			members[j] = sels[i]
		}
		order := childOrder(d, members[0].PathIDs[g-1])
		slices.SortStableFunc(members, func(x, y Selection) int {
			return order[x.PathIDs[g]] - order[y.PathIDs[g]]
		})
		for j, i := range idx {
			sels[i] = members[j]
		}
	}
	return sels
}

// inGroup reports whether s is the prefix-only row or a full-length row of the group at prefix.
func inGroup(s Selection, prefix []string, g int) bool {
	if len(s.PathIDs) != g && len(s.PathIDs) != g+1 {
		return false
	}
	return slices.Equal(s.PathIDs[:g], prefix)
}

// ToggleFinalCategory adds the full-length selection prefix+categoryID to the
// first dimension if absent, or removes it if present. An added row goes
// before the first group member that follows it in taxonomy order, or after
// the last member. Every engine operation keeps members in that order, so
// toggling twice restores the list. Outside multi-leaf mode, or when prefix is
// not a group prefix or categoryID is not one of its children, it is a no-op.
func (e *Engine) ToggleFinalCategory(sels []Selection, prefix []string, categoryID string) []Selection {
	out := cloneAll(sels)

	d := e.tax.First()
	g := e.groupDepth(d.Name)
	if g == 0 || len(prefix) != g {
		return out
	}
	c, ok := d.Category(categoryID)
	if !ok || c.Parent != prefix[g-1] {
		return out
	}

	path := append(slices.Clone(prefix), categoryID)
	for i, s := range out {
		if s.DimensionName == d.Name && slices.Equal(s.PathIDs, path) {
			return slices.Delete(out, i, i+1)
		}
	}

	order := childOrder(d, prefix[g-1])
	pos := -1
	for i, s := range out {
		if s.DimensionName != d.Name || !inGroup(s, prefix, g) {
			continue
		}
		if len(s.PathIDs) > g && order[s.PathIDs[g]] > order[categoryID] {
			pos = i
			break
		}
		pos = i + 1
	}
	if pos < 0 {
		pos = len(out)
	}

	added := Selection{DimensionName: d.Name, PathIDs: path, PathNames: names(d, path)}
	return slices.Insert(out, pos, added)
}

func childOrder(d *taxonomy.Dimension, parent string) map[string]int {
	children := d.Children(parent)
	order := make(map[string]int, len(children))
	for i, c := range children {
		order[c.ID] = i
	}
	return order
}

// AddRow appends an empty selection for dimension. Without ExtraRows a
// dimension holds at most one row.
func (e *Engine) AddRow(sels []Selection, dimension string) []Selection {
	out := cloneAll(sels)
	if _, ok := e.tax.Dimension(dimension); !ok {
		return out
	}
	if !e.cfg.ExtraRows && slices.ContainsFunc(out, func(s Selection) bool { return s.DimensionName == dimension }) {
		return out
	}
	return append(out, Selection{DimensionName: dimension, PathIDs: []string{}})
}

// RemoveRow removes the selection at index together with the rest of its
// multi-leaf group. Without ExtraRows the row is cleared instead of removed.
func (e *Engine) RemoveRow(sels []Selection, index int) []Selection {
	out := cloneAll(sels)
	if index < 0 || index >= len(out) {
		return out
	}

	target := out[index]
	if g := e.groupDepth(target.DimensionName); g > 0 && len(target.PathIDs) >= g {
		prefix := slices.Clone(target.PathIDs[:g])
		out = slices.DeleteFunc(out, func(s Selection) bool {
			return s.DimensionName == target.DimensionName && inGroup(s, prefix, g)
		})
	} else {
		out = slices.Delete(out, index, index+1)
	}

	if !e.cfg.ExtraRows && !slices.ContainsFunc(out, func(s Selection) bool { return s.DimensionName == target.DimensionName }) {
		cleared := Selection{DimensionName: target.DimensionName, PathIDs: []string{}}
		out = slices.Insert(out, min(index, len(out)), cleared)
	}

	return out
}

// Names resolves each id of the selection to its category name. Ids that do
// not resolve are omitted.
func (e *Engine) Names(s Selection) []string {
	d, ok := e.tax.Dimension(s.DimensionName)
	if !ok {
		return []string{}
	}
	return names(d, s.PathIDs)
}

func names(d *taxonomy.Dimension, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := d.Category(id); ok {
			out = append(out, c.Name)
		}
	}
	return out
}

func cloneAll(sels []Selection) []Selection {
	out := make([]Selection, len(sels))
	for i, s := range sels {
		out[i] = s.clone()
	}
	return out
}

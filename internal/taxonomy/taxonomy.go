// Package taxonomy normalizes multi-dimension label trees into an id-keyed arena.
//
// A category id is the ">"-joined chain of "levelLabel:name" tokens from the
// dimension root down to the category itself, so ids are a pure function of
// the raw source and are never stored independently of it.
package taxonomy

import "strings"

// DefaultDimensionName replaces an empty dimension name.
const DefaultDimensionName = "Default"

// RawCategory is the wire shape of one taxonomy node.
type RawCategory struct {
	LevelLabel string        `json:"levelLabel,omitempty" yaml:"levelLabel,omitempty"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Children   []RawCategory `json:"children,omitempty" yaml:"children,omitempty"`
}

// RawDimension is the wire shape of one taxonomy dimension.
type RawDimension struct {
	Name       string        `json:"name" yaml:"name"`
	Categories []RawCategory `json:"categories" yaml:"categories"`
}

// Category is a normalized node. Children holds child ids in source order and is never nil.
type Category struct {
	ID         string   `json:"id"`
	LevelLabel string   `json:"levelLabel"`
	Name       string   `json:"name"`
	Parent     string   `json:"parent,omitempty"`
	Depth      int      `json:"depth"`
	Children   []string `json:"children"`
}

// Dimension is one normalized tree with its analyzed depth and level titles.
type Dimension struct {
	Name        string   `json:"name"`
	Roots       []string `json:"roots"`
	MaxDepth    int      `json:"maxDepth"`
	LevelTitles []string `json:"levelTitles"`

	nodes map[string]*Category
}

// Taxonomy is the ordered set of dimensions for one task.
type Taxonomy struct {
	Dimensions []*Dimension `json:"dimensions"`

	index map[string]int
}

// CategoryID derives the id of a node from its parent's id and its own label and name.
func CategoryID(parentID, levelLabel, name string) string {
	token := levelLabel + ":" + name
	if parentID == "" {
		return token
	}
	return parentID + ">" + token
}

// Normalize builds a Taxonomy from raw dimensions. Sibling nodes that share a
// level label and name merge into one category.
func Normalize(raw []RawDimension) (*Taxonomy, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}

	t := &Taxonomy{
		Dimensions: make([]*Dimension, 0, len(raw)),
		index:      make(map[string]int, len(raw)),
	}

	for _, rd := range raw {
		name := strings.TrimSpace(rd.Name)
		if name == "" {
			name = DefaultDimensionName
		}
		if _, dup := t.index[name]; dup {
			return nil, structureError(name, 0, "duplicate dimension")
		}

		d := &Dimension{
			Name:  name,
			Roots: []string{},
			nodes: make(map[string]*Category),
		}
		d.Roots = d.insert("", 1, rd.Categories, d.Roots)
		d.MaxDepth, d.LevelTitles = Analyze(d)

		t.index[name] = len(t.Dimensions)
		t.Dimensions = append(t.Dimensions, d)
	}

	return t, nil
}

func (d *Dimension) insert(parentID string, depth int, raw []RawCategory, ids []string) []string {
	for _, rc := range raw {
		id := CategoryID(parentID, rc.LevelLabel, rc.Name)

		node, ok := d.nodes[id]
		if !ok {
			node = &Category{
				ID:         id,
				LevelLabel: rc.LevelLabel,
				Name:       rc.Name,
				Parent:     parentID,
				Depth:      depth,
				Children:   []string{},
			}
			d.nodes[id] = node
			ids = append(ids, id)
		}
		node.Children = d.insert(id, depth+1, rc.Children, node.Children)
	}
	return ids
}

// Dimension returns the dimension with the given name.
func (t *Taxonomy) Dimension(name string) (*Dimension, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.Dimensions[i], true
}

// First returns the first dimension.
func (t *Taxonomy) First() *Dimension {
	return t.Dimensions[0]
}

// IsFirst reports whether name is the first dimension.
func (t *Taxonomy) IsFirst(name string) bool {
	return t.Dimensions[0].Name == name
}

// FirstLevelNames returns the root category names of the first dimension in source order.
func (t *Taxonomy) FirstLevelNames() []string {
	d := t.First()
	names := make([]string, 0, len(d.Roots))
	for _, id := range d.Roots {
		names = append(names, d.nodes[id].Name)
	}
	return names
}

// Raw exports the taxonomy back to its wire shape.
func (t *Taxonomy) Raw() []RawDimension {
	out := make([]RawDimension, 0, len(t.Dimensions))
	for _, d := range t.Dimensions {
		out = append(out, RawDimension{
			Name:       d.Name,
			Categories: d.raw(d.Roots),
		})
	}
	return out
}

func (d *Dimension) raw(ids []string) []RawCategory {
	out := make([]RawCategory, 0, len(ids))
	for _, id := range ids {
		c := d.nodes[id]
		rc := RawCategory{LevelLabel: c.LevelLabel, Name: c.Name}
		if len(c.Children) > 0 {
			rc.Children = d.raw(c.Children)
		}
		out = append(out, rc)
	}
	return out
}

// Category resolves an id within the dimension.
func (d *Dimension) Category(id string) (Category, bool) {
	c, ok := d.nodes[id]
	if !ok {
		return Category{}, false
	}
	return *c, true
}

// Children returns the categories under parentID, or the roots when parentID is empty.
func (d *Dimension) Children(parentID string) []Category {
	ids := d.Roots
	if parentID != "" {
		c, ok := d.nodes[parentID]
		if !ok {
			return nil
		}
		ids = c.Children
	}
	out := make([]Category, 0, len(ids))
	for _, id := range ids {
		out = append(out, *d.nodes[id])
	}
	return out
}

// Len returns the number of categories in the dimension.
func (d *Dimension) Len() int {
	return len(d.nodes)
}

// Root returns the root category name for the first id of a path.
func (d *Dimension) Root(pathIDs []string) (string, bool) {
	if len(pathIDs) == 0 {
		return "", false
	}
	c, ok := d.nodes[pathIDs[0]]
	if !ok || c.Depth != 1 {
		return "", false
	}
	return c.Name, true
}

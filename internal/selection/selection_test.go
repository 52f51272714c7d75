package selection_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
)

var ignoreNames = cmp.Options{
	cmpopts.IgnoreFields(selection.Selection{}, "PathNames"),
	cmpopts.EquateEmpty(),
}

func sel(dim string, ids ...string) selection.Selection {
	return selection.Selection{DimensionName: dim, PathIDs: ids}
}

// Topic: A > {A1, A2}, B. Difficulty: Easy, Hard.
func flatTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Normalize([]taxonomy.RawDimension{
		{Name: "Topic", Categories: []taxonomy.RawCategory{
			{LevelLabel: "L1", Name: "A", Children: []taxonomy.RawCategory{
				{LevelLabel: "L2", Name: "A1"},
				{LevelLabel: "L2", Name: "A2"},
			}},
			{LevelLabel: "L1", Name: "B"},
		}},
		{Name: "Difficulty", Categories: []taxonomy.RawCategory{
			{LevelLabel: "Level", Name: "Easy"},
			{LevelLabel: "Level", Name: "Hard"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

// Topic: A > A1 > {x, y, z}, A > A2 > {w}, B > B1 > {v}. Difficulty: Easy, Hard.
func deepTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	leaves := func(names ...string) []taxonomy.RawCategory {
		var out []taxonomy.RawCategory
		for _, n := range names {
			out = append(out, taxonomy.RawCategory{LevelLabel: "L3", Name: n})
		}
		return out
	}
	tax, err := taxonomy.Normalize([]taxonomy.RawDimension{
		{Name: "Topic", Categories: []taxonomy.RawCategory{
			{LevelLabel: "L1", Name: "A", Children: []taxonomy.RawCategory{
				{LevelLabel: "L2", Name: "A1", Children: leaves("x", "y", "z")},
				{LevelLabel: "L2", Name: "A2", Children: leaves("w")},
			}},
			{LevelLabel: "L1", Name: "B", Children: []taxonomy.RawCategory{
				{LevelLabel: "L2", Name: "B1", Children: leaves("v")},
			}},
		}},
		{Name: "Difficulty", Categories: []taxonomy.RawCategory{
			{LevelLabel: "Level", Name: "Easy"},
			{LevelLabel: "Level", Name: "Hard"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

const (
	a    = "L1:A"
	b    = "L1:B"
	a1   = "L1:A>L2:A1"
	a2   = "L1:A>L2:A2"
	b1   = "L1:B>L2:B1"
	a1x  = "L1:A>L2:A1>L3:x"
	a1y  = "L1:A>L2:A1>L3:y"
	a1z  = "L1:A>L2:A1>L3:z"
	a2w  = "L1:A>L2:A2>L3:w"
	easy = "Level:Easy"
)

func TestSetLevelDiscardsStaleDescendants(t *testing.T) {
	e := selection.New(flatTaxonomy(t), selection.Config{})

	sels := []selection.Selection{sel("Topic")}
	sels = e.SetLevel(sels, 0, 1, a)
	sels = e.SetLevel(sels, 0, 2, a1)

	want := []selection.Selection{{DimensionName: "Topic", PathIDs: []string{a, a1}, PathNames: []string{"A", "A1"}}}
	if diff := cmp.Diff(want, sels); diff != "" {
		t.Fatalf("after A/A1 (-want +got):\n%s", diff)
	}

	sels = e.SetLevel(sels, 0, 1, b)
	want = []selection.Selection{{DimensionName: "Topic", PathIDs: []string{b}, PathNames: []string{"B"}}}
	if diff := cmp.Diff(want, sels); diff != "" {
		t.Errorf("after switching level 1 to B (-want +got):\n%s", diff)
	}
}

func TestSetLevelPathLength(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{})
	start := []selection.Selection{sel("Topic", a, a1, a1x)}

	tests := []struct {
		level int
		value string
		want  int
	}{
		{1, a, 1},
		{1, b, 1},
		{2, a2, 2},
		{3, a1y, 3},
		{1, selection.Unselected, 0},
		{2, selection.Unselected, 1},
		{3, selection.Unselected, 2},
	}

	for _, tt := range tests {
		got := e.SetLevel(start, 0, tt.level, tt.value)
		if n := len(got[0].PathIDs); n != tt.want {
			t.Errorf("SetLevel(level=%d, %q) length = %d, want %d", tt.level, tt.value, n, tt.want)
		}
		if len(got[0].PathNames) != len(got[0].PathIDs) {
			t.Errorf("SetLevel(level=%d) names %v do not match ids %v", tt.level, got[0].PathNames, got[0].PathIDs)
		}
	}

	if diff := cmp.Diff([]selection.Selection{sel("Topic", a, a1, a1x)}, start, ignoreNames); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestSetLevelNoops(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{})
	start := []selection.Selection{sel("Topic", a), sel("Ghost", "x")}

	tests := []struct {
		name  string
		index int
		level int
		value string
	}{
		{"index out of range", 5, 1, b},
		{"negative index", -1, 1, b},
		{"level zero", 0, 0, b},
		{"level skips ahead", 0, 3, a1x},
		{"level beyond depth", 0, 4, a1x},
		{"unknown category", 0, 2, "L1:A>L2:missing"},
		{"category under another parent", 0, 2, b1},
		{"unknown dimension", 1, 1, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.SetLevel(start, tt.index, tt.level, tt.value)
			if diff := cmp.Diff(start, got, ignoreNames); diff != "" {
				t.Errorf("expected no-op (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetLevelGroupReplace(t *testing.T) {
	tests := []struct {
		name  string
		cfg   selection.Config
		index int
		level int
		value string
		want  []selection.Selection
	}{
		{
			name:  "prefix row edit removes group",
			cfg:   selection.Config{MultiLeaf: true},
			index: 0, level: 2, value: a2,
			want: []selection.Selection{
				sel("Topic", a, a2),
				sel("Topic", a, a2, a2w),
				sel("Difficulty", easy),
			},
		},
		{
			name:  "leaf row edit at level one removes group",
			cfg:   selection.Config{MultiLeaf: true},
			index: 2, level: 1, value: b,
			want: []selection.Selection{
				sel("Topic", b),
				sel("Topic", a, a2, a2w),
				sel("Difficulty", easy),
			},
		},
		{
			name:  "unselect prefix level removes group",
			cfg:   selection.Config{MultiLeaf: true},
			index: 0, level: 1, value: selection.Unselected,
			want: []selection.Selection{
				sel("Topic"),
				sel("Topic", a, a2, a2w),
				sel("Difficulty", easy),
			},
		},
		{
			name:  "leaf level edit keeps group in taxonomy order",
			cfg:   selection.Config{MultiLeaf: true},
			index: 1, level: 3, value: a1z,
			want: []selection.Selection{
				sel("Topic", a, a1),
				sel("Topic", a, a1, a1y),
				sel("Topic", a, a1, a1z),
				sel("Topic", a, a2, a2w),
				sel("Difficulty", easy),
			},
		},
		{
			name:  "single leaf mode edits only the row",
			cfg:   selection.Config{},
			index: 0, level: 2, value: a2,
			want: []selection.Selection{
				sel("Topic", a, a2),
				sel("Topic", a, a1, a1x),
				sel("Topic", a, a1, a1y),
				sel("Topic", a, a2, a2w),
				sel("Difficulty", easy),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := selection.New(deepTaxonomy(t), tt.cfg)
			start := []selection.Selection{
				sel("Topic", a, a1),
				sel("Topic", a, a1, a1x),
				sel("Topic", a, a1, a1y),
				sel("Topic", a, a2, a2w),
				sel("Difficulty", easy),
			}

			got := e.SetLevel(start, tt.index, tt.level, tt.value)
			if diff := cmp.Diff(tt.want, got, ignoreNames); diff != "" {
				t.Errorf("SetLevel() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGroupReplaceLeavesNothingUnderOldPrefix(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{MultiLeaf: true})
	start := []selection.Selection{
		sel("Topic", a, a1),
		sel("Topic", a, a1, a1x),
		sel("Topic", a, a1, a1y),
		sel("Topic", a, a1, a1z),
	}

	for index := range start {
		for level := 1; level <= 2; level++ {
			for _, value := range []string{b, a2, selection.Unselected} {
				if level == 2 && value == b {
					continue
				}
				got := e.SetLevel(start, index, level, value)
				for _, s := range got {
					if len(s.PathIDs) >= 2 && s.PathIDs[0] == a && s.PathIDs[1] == a1 {
						t.Errorf("index %d level %d value %q left %v under old prefix", index, level, value, s.PathIDs)
					}
				}
			}
		}
	}
}

func TestToggleFinalCategoryIsSelfInverse(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{MultiLeaf: true})
	prefix := []string{a, a1}

	states := [][]selection.Selection{
		{sel("Topic", a, a1), sel("Difficulty", easy)},
	}
	s := states[0]
	for _, leaf := range []string{a1y, a1x, a1z} {
		s = e.ToggleFinalCategory(s, prefix, leaf)
		states = append(states, s)
	}

	wantLast := []selection.Selection{
		sel("Topic", a, a1),
		sel("Topic", a, a1, a1x),
		sel("Topic", a, a1, a1y),
		sel("Topic", a, a1, a1z),
		sel("Difficulty", easy),
	}
	if diff := cmp.Diff(wantLast, s, ignoreNames); diff != "" {
		t.Fatalf("members not kept in taxonomy order (-want +got):\n%s", diff)
	}

	// Retarget the x row to z, then reach the same group from a loaded list
	// stored out of order.
	edited := e.ToggleFinalCategory(e.ToggleFinalCategory(states[0], prefix, a1x), prefix, a1y)
	edited = e.SetLevel(edited, 1, 3, a1z)
	wantEdited := []selection.Selection{
		sel("Topic", a, a1),
		sel("Topic", a, a1, a1y),
		sel("Topic", a, a1, a1z),
		sel("Difficulty", easy),
	}
	if diff := cmp.Diff(wantEdited, edited, ignoreNames); diff != "" {
		t.Fatalf("leaf edit left group out of order (-want +got):\n%s", diff)
	}
	states = append(states, edited)

	loaded := []selection.Selection{
		sel("Topic", a, a1),
		{DimensionName: "Topic", PathIDs: []string{a, a1, a1z}, PathNames: []string{"A", "A1", "z"}},
		{DimensionName: "Topic", PathIDs: []string{a, a1, a1x}, PathNames: []string{"A", "A1", "x"}},
		sel("Difficulty", easy),
	}
	reordered, err := e.Apply(loaded, selection.Operation{Kind: selection.OpToggleLeaf, Prefix: prefix, CategoryID: a1y})
	if err != nil {
		t.Fatal(err)
	}
	reordered, err = e.Apply(reordered, selection.Operation{Kind: selection.OpToggleLeaf, Prefix: prefix, CategoryID: a1y})
	if err != nil {
		t.Fatal(err)
	}
	wantLoaded := []selection.Selection{
		sel("Topic", a, a1),
		sel("Topic", a, a1, a1x),
		sel("Topic", a, a1, a1z),
		sel("Difficulty", easy),
	}
	if diff := cmp.Diff(wantLoaded, reordered, ignoreNames); diff != "" {
		t.Fatalf("loaded list not reordered (-want +got):\n%s", diff)
	}
	states = append(states, reordered)

	for i, state := range states {
		for _, leaf := range []string{a1x, a1y, a1z} {
			twice := e.ToggleFinalCategory(e.ToggleFinalCategory(state, prefix, leaf), prefix, leaf)
			if diff := cmp.Diff(state, twice, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("state %d leaf %q: toggle twice changed list (-want +got):\n%s", i, leaf, diff)
			}
		}
	}
}

func TestToggleFinalCategoryNoops(t *testing.T) {
	start := []selection.Selection{sel("Topic", a, a1)}

	tests := []struct {
		name   string
		cfg    selection.Config
		prefix []string
		leaf   string
	}{
		{"multi-leaf disabled", selection.Config{}, []string{a, a1}, a1x},
		{"prefix too short", selection.Config{MultiLeaf: true}, []string{a}, a1},
		{"leaf under another prefix", selection.Config{MultiLeaf: true}, []string{a, a1}, a2w},
		{"unknown leaf", selection.Config{MultiLeaf: true}, []string{a, a1}, "L1:A>L2:A1>L3:q"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := selection.New(deepTaxonomy(t), tt.cfg)
			got := e.ToggleFinalCategory(start, tt.prefix, tt.leaf)
			if diff := cmp.Diff(start, got, ignoreNames); diff != "" {
				t.Errorf("expected no-op (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDedup(t *testing.T) {
	in := []selection.Selection{
		{DimensionName: "Topic", PathIDs: []string{a, a1}, PathNames: []string{"first"}},
		sel("Topic", a),
		{DimensionName: "Topic", PathIDs: []string{a, a1}, PathNames: []string{"second"}},
		sel("Difficulty", a),
	}

	got := selection.Dedup(in)
	want := []selection.Selection{
		{DimensionName: "Topic", PathIDs: []string{a, a1}, PathNames: []string{"first"}},
		sel("Topic", a),
		sel("Difficulty", a),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dedup() mismatch (-want +got):\n%s", diff)
	}
}

func TestLeafOnlyKeepsDeepestPath(t *testing.T) {
	got := selection.LeafOnly([]selection.Selection{sel("Topic", a), sel("Topic", a, a1)})
	want := []selection.Selection{sel("Topic", a, a1)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LeafOnly() mismatch (-want +got):\n%s", diff)
	}
}

func TestLeafOnlyIsIdempotent(t *testing.T) {
	sets := [][]selection.Selection{
		nil,
		{sel("Topic", a)},
		{sel("Topic", a), sel("Topic", a, a1), sel("Topic", a, a1, a1x)},
		{sel("Topic", a, a1), sel("Topic", a, a2), sel("Topic", a)},
		{sel("Topic", a), sel("Difficulty", a, a1)},
		{sel("Topic"), sel("Topic", b), sel("Difficulty")},
		{sel("Topic", a, a1), sel("Topic", a, a1)},
	}

	for i, s := range sets {
		once := selection.LeafOnly(s)
		twice := selection.LeafOnly(once)
		if diff := cmp.Diff(once, twice, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("set %d: filter not idempotent (-once +twice):\n%s", i, diff)
		}
	}
}

func TestLeafOnlyIgnoresOtherDimensions(t *testing.T) {
	in := []selection.Selection{sel("Topic", a), sel("Difficulty", a, a1)}
	if diff := cmp.Diff(in, selection.LeafOnly(in)); diff != "" {
		t.Errorf("cross-dimension prefix dropped (-want +got):\n%s", diff)
	}
}

func TestFinalize(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{MultiLeaf: true})

	in := []selection.Selection{
		sel("Topic", a, a1),
		{DimensionName: "Topic", PathIDs: []string{a, a1, a1x}, PathNames: []string{"stale"}},
		sel("Topic", a, a1, a1x),
		sel("Topic"),
		sel("Difficulty", easy),
	}

	want := []selection.Selection{
		{DimensionName: "Topic", PathIDs: []string{a, a1, a1x}, PathNames: []string{"A", "A1", "x"}},
		{DimensionName: "Difficulty", PathIDs: []string{easy}, PathNames: []string{"Easy"}},
	}
	if diff := cmp.Diff(want, e.Finalize(in)); diff != "" {
		t.Errorf("Finalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNamesOmitUnresolved(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{})

	got := e.Names(sel("Topic", a, "L1:A>L2:gone", a1x))
	if diff := cmp.Diff([]string{"A", "x"}, got); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if got := e.Names(sel("Ghost", a)); len(got) != 0 {
		t.Errorf("Names() for unknown dimension = %v, want empty", got)
	}
}

func TestFold(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{MultiLeaf: true})

	sels := []selection.Selection{
		sel("Topic", a, a1, a1y),
		sel("Difficulty", easy),
		sel("Topic", a, a1),
		sel("Topic", b),
		sel("Topic", a, a1, a1x),
	}

	got := e.Fold(sels, "Topic")
	want := []selection.View{
		{Index: 0, Selection: sel("Topic", a, a1), Leaves: []string{a1y, a1x}},
		{Index: 3, Selection: sel("Topic", b)},
	}
	if diff := cmp.Diff(want, got, ignoreNames); diff != "" {
		t.Errorf("Fold() mismatch (-want +got):\n%s", diff)
	}

	flat := selection.New(deepTaxonomy(t), selection.Config{})
	if n := len(flat.Fold(sels, "Topic")); n != 4 {
		t.Errorf("Fold() without multi-leaf returned %d views, want 4", n)
	}
}

func TestRows(t *testing.T) {
	tax := flatTaxonomy(t)

	single := selection.New(tax, selection.Config{})
	blank := single.Blank()
	if diff := cmp.Diff([]selection.Selection{sel("Topic"), sel("Difficulty")}, blank, ignoreNames); diff != "" {
		t.Fatalf("Blank() mismatch (-want +got):\n%s", diff)
	}

	if got := single.AddRow(blank, "Topic"); len(got) != 2 {
		t.Errorf("AddRow without extra rows added a row: %v", got)
	}
	cleared := single.RemoveRow([]selection.Selection{sel("Topic", a), sel("Difficulty", easy)}, 0)
	if diff := cmp.Diff([]selection.Selection{sel("Topic"), sel("Difficulty", easy)}, cleared, ignoreNames); diff != "" {
		t.Errorf("RemoveRow without extra rows should clear (-want +got):\n%s", diff)
	}

	extra := selection.New(tax, selection.Config{ExtraRows: true})
	added := extra.AddRow(blank, "Topic")
	if len(added) != 3 || added[2].DimensionName != "Topic" {
		t.Errorf("AddRow with extra rows = %v", added)
	}
	if got := extra.AddRow(blank, "Ghost"); len(got) != 2 {
		t.Errorf("AddRow for unknown dimension changed list: %v", got)
	}
	removed := extra.RemoveRow(added, 2)
	if diff := cmp.Diff(blank, removed, ignoreNames); diff != "" {
		t.Errorf("RemoveRow mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveRowRemovesGroup(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{MultiLeaf: true, ExtraRows: true})

	got := e.RemoveRow([]selection.Selection{
		sel("Topic", a, a1),
		sel("Topic", a, a1, a1x),
		sel("Topic", a, a2, a2w),
	}, 1)

	want := []selection.Selection{sel("Topic", a, a2, a2w)}
	if diff := cmp.Diff(want, got, ignoreNames); diff != "" {
		t.Errorf("RemoveRow() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{})

	tests := []struct {
		name string
		sels []selection.Selection
		want error
	}{
		{"valid", []selection.Selection{sel("Topic", a, a1, a1x), sel("Difficulty")}, nil},
		{"unknown dimension", []selection.Selection{sel("Ghost", a)}, selection.ErrUnknownDimension},
		{"unknown id", []selection.Selection{sel("Topic", a, "nope")}, selection.ErrInvalidPath},
		{"broken chain", []selection.Selection{sel("Topic", a, b1)}, selection.ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Validate(tt.sels)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCategory(t *testing.T) {
	e := selection.New(deepTaxonomy(t), selection.Config{})

	tests := []struct {
		name string
		sels []selection.Selection
		want string
	}{
		{"first dimension root", []selection.Selection{sel("Topic", b, b1)}, "B"},
		{"skips other dimensions", []selection.Selection{sel("Difficulty", easy), sel("Topic", a, a1)}, "A"},
		{"skips empty rows", []selection.Selection{sel("Topic"), sel("Topic", a)}, "A"},
		{"none", []selection.Selection{sel("Difficulty", easy)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Category(tt.sels); got != tt.want {
				t.Errorf("Category() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	e := selection.New(flatTaxonomy(t), selection.Config{})

	got, err := e.Apply(e.Blank(), selection.Operation{Kind: selection.OpSetLevel, Index: 0, Level: 1, Value: a})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]selection.Selection{sel("Topic", a), sel("Difficulty")}, got, ignoreNames); diff != "" {
		t.Errorf("Apply(setLevel) mismatch (-want +got):\n%s", diff)
	}

	if _, err := e.Apply(got, selection.Operation{Kind: "explode"}); !errors.Is(err, selection.ErrUnknownOperation) {
		t.Errorf("Apply(unknown) error = %v, want ErrUnknownOperation", err)
	}
}

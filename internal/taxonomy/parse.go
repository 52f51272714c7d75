package taxonomy

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Supported source formats, keyed by file extension.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatXLSX = "xlsx"
)

// FormatOf returns the source format implied by a file name or storage key.
func FormatOf(name string) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path.Ext(name))
	}
}

// Parse reads raw dimensions in the format implied by name.
func Parse(name string, r io.Reader) ([]RawDimension, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return ParseJSON(r)
	case FormatYAML:
		return ParseYAML(r)
	default:
		return ParseXLSX(r)
	}
}

// Load parses and normalizes in one step.
func Load(name string, r io.Reader) (*Taxonomy, error) {
	raw, err := Parse(name, r)
	if err != nil {
		return nil, err
	}
	return Normalize(raw)
}

// ParseJSON reads a JSON array of dimensions.
func ParseJSON(r io.Reader) ([]RawDimension, error) {
	var raw []RawDimension
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrStructure, err)
	}
	return raw, nil
}

// ParseYAML reads a YAML sequence of dimensions.
func ParseYAML(r io.Reader) ([]RawDimension, error) {
	var raw []RawDimension
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrStructure, err)
	}
	return raw, nil
}

// ParseXLSX reads a workbook where each sheet is a dimension. The first row
// holds level labels; level columns run from the first non-empty header cell
// to the next empty one. Merged cells take their anchor value. A row whose
// deeper level has a value while a shallower level is empty is rejected.
// Sheets with an empty header row are skipped.
func ParseXLSX(r io.Reader) ([]RawDimension, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrStructure, err)
	}
	defer f.Close()

	var dims []RawDimension
	for _, sheet := range f.GetSheetList() {
		grid, err := filledGrid(f, sheet)
		if err != nil {
			return nil, err
		}

		dim, ok, err := sheetDimension(sheet, grid)
		if err != nil {
			return nil, err
		}
		if ok {
			dims = append(dims, dim)
		}
	}

	return dims, nil
}

type levelColumn struct {
	col    int
	header string
}

func sheetDimension(sheet string, grid [][]string) (RawDimension, bool, error) {
	if len(grid) == 0 {
		return RawDimension{}, false, nil
	}

	var levels []levelColumn
	for col, cell := range grid[0] {
		text := strings.TrimSpace(cell)
		if text == "" {
			if len(levels) > 0 {
				break
			}
			continue
		}
		levels = append(levels, levelColumn{col: col, header: text})
	}
	if len(levels) == 0 {
		return RawDimension{}, false, nil
	}

	roots := []*rawNode{}
	index := make(map[string]*rawNode)

	for r := 1; r < len(grid); r++ {
		values := make([]string, len(levels))
		empty := true
		for i, lc := range levels {
			if lc.col < len(grid[r]) {
				values[i] = strings.TrimSpace(grid[r][lc.col])
			}
			if values[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}

		for i, v := range values {
			if v != "" {
				continue
			}
			for _, deeper := range values[i+1:] {
				if deeper != "" {
					return RawDimension{}, false, structureError(
						sheet, r+1,
						fmt.Sprintf("level %q is empty but a deeper level has a value", levels[i].header),
					)
				}
			}
			break
		}

		var parent *rawNode
		parentID := ""
		for i, v := range values {
			if v == "" {
				break
			}
			id := CategoryID(parentID, levels[i].header, v)
			node, ok := index[id]
			if !ok {
				node = &rawNode{RawCategory: RawCategory{LevelLabel: levels[i].header, Name: v}}
				index[id] = node
				if parent == nil {
					roots = append(roots, node)
				} else {
					parent.children = append(parent.children, node)
				}
			}
			parent = node
			parentID = id
		}
	}

	return RawDimension{Name: sheet, Categories: flatten(roots)}, true, nil
}

type rawNode struct {
	RawCategory
	children []*rawNode
}

func flatten(nodes []*rawNode) []RawCategory {
	out := make([]RawCategory, 0, len(nodes))
	for _, n := range nodes {
		rc := n.RawCategory
		if len(n.children) > 0 {
			rc.Children = flatten(n.children)
		}
		out = append(out, rc)
	}
	return out
}

// filledGrid returns the sheet's cell values with merged regions filled from their anchor.
func filledGrid(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("read merged cells %q: %w", sheet, err)
	}

	for _, m := range merges {
		value := strings.TrimSpace(m.GetCellValue())
		if value == "" {
			continue
		}
		startCol, startRow, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			return nil, err
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			return nil, err
		}
		for len(rows) < endRow {
			rows = append(rows, nil)
		}
		for r := startRow - 1; r < endRow; r++ {
			for len(rows[r]) < endCol {
				rows[r] = append(rows[r], "")
			}
			for c := startCol - 1; c < endCol; c++ {
				rows[r][c] = value
			}
		}
	}

	return rows, nil
}

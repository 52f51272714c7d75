// Package datasets reads task row data from blob storage.
package datasets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Row is one dataset record keyed by column name.
type Row map[string]any

// Domain errors for dataset parsing.
var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrInvalid           = errors.New("invalid dataset")
	ErrEmpty             = errors.New("dataset has no rows")
)

// Parse reads rows in the format implied by the file name.
func Parse(name string, r io.Reader) ([]Row, error) {
	var (
		rows []Row
		err  error
	)

	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		rows, err = parseJSON(r)
	case ".yaml", ".yml":
		rows, err = parseYAML(r)
	case ".xlsx":
		rows, err = parseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

func parseJSON(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalid, err)
	}
	return rows, nil
}

func parseYAML(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalid, err)
	}
	return rows, nil
}

// parseXLSX reads the first sheet; the header row names the keys and
// columns without a header are ignored.
func parseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrInvalid, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}

	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(grid) == 0 {
		return nil, ErrEmpty
	}

	header := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := make(Row, len(header))
		for i, key := range header {
			if key == "" {
				continue
			}
			value := ""
			if i < len(cells) {
				value = strings.TrimSpace(cells[i])
			}
			row[key] = value
		}
		if !blank(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func blank(row Row) bool {
	for _, v := range row {
		if s, ok := v.(string); !ok || s != "" {
			return false
		}
	}
	return true
}

// Slice returns rows[start:end] clamped to the available range.
func Slice(rows []Row, start, end int) []Row {
	start = max(start, 0)
	end = min(end, len(rows))
	if start >= end {
		return []Row{}
	}
	return rows[start:end]
}

// MapHTTPStatus maps dataset errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrRowOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrInvalid),
		errors.Is(err, ErrEmpty):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

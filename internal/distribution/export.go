package distribution

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/internal/tasks"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

// Export sheet layout.
const (
	ExportSheet       = "results"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	unlabeled       = "unlabeled"
	reviewColumn    = "needs_review"
	requirementsKey = "requirementVector"
)

// Export is a rendered results workbook.
type Export struct {
	Filename string
	Data     []byte
}

const flaggedRowsQuery = `SELECT row_index FROM task_rows WHERE task_id = $1 AND need_to_review`

// Export renders the task's dataset with every finished result, labeling and
// review alike, appended to its row.
func (r *repo) Export(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (*Export, error) {
	t, err := tasks.Get(ctx, r.db, taskID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(t.PublisherID) {
		return nil, identity.ErrForbidden
	}

	engine, err := r.engines.Engine(ctx, taskID)
	if err != nil {
		return nil, err
	}
	rows, err := r.rows.Rows(ctx, t.DatasetKey, 0, t.RowCount)
	if err != nil {
		return nil, err
	}

	sql, args := query.NewBuilder(projection).
		WhereEquals("TaskID", taskID).
		WhereEquals("Finished", true).
		OrderByFields([]query.SortField{
			{Field: "RowIndex"},
			{Field: "Round"},
			{Field: "FinishedAt"},
			{Field: "WorkerID"},
		}).
		Build()
	results, err := repository.QueryMany(ctx, r.db, sql, args, scanResult)
	if err != nil {
		return nil, fmt.Errorf("query finished results: %w", err)
	}

	flagged, err := repository.QueryMany(ctx, r.db, flaggedRowsQuery, []any{taskID}, func(s repository.Scanner) (int, error) {
		var i int
		err := s.Scan(&i)
		return i, err
	})
	if err != nil {
		return nil, fmt.Errorf("query flagged rows: %w", err)
	}

	data, err := Workbook(engine.Dimensions(), rows, results, flagged)
	if err != nil {
		return nil, err
	}

	r.logger.Info("results exported",
		"task_id", taskID,
		"by", actor.ID,
		"rows", len(rows),
		"results", len(results),
	)
	return &Export{
		Filename: fmt.Sprintf("%s_results_%s.xlsx", t.Title, r.now().Format(time.DateOnly)),
		Data:     data,
	}, nil
}

// Workbook lays out one sheet row per dataset row: the data columns in name
// order, then for each finished result a column per dimension holding the
// joined path names and a column naming the worker, then whether the row is
// flagged for review.
func Workbook(dimensions []string, rows []datasets.Row, results []Result, flagged []int) ([]byte, error) {
	byRow := make(map[int][]Result)
	most := 0
	for _, res := range results {
		byRow[res.RowIndex] = append(byRow[res.RowIndex], res)
		most = max(most, len(byRow[res.RowIndex]))
	}

	keys := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			if k != requirementsKey {
				keys[k] = struct{}{}
			}
		}
	}
	columns := slices.Sorted(maps.Keys(keys))

	header := make([]any, 0, len(columns)+most*(len(dimensions)+1)+1)
	for _, c := range columns {
		header = append(header, c)
	}
	for n := 1; n <= most; n++ {
		for _, d := range dimensions {
			header = append(header, fmt.Sprintf("result_%d_%s", n, d))
		}
		header = append(header, fmt.Sprintf("result_%d_worker", n))
	}
	header = append(header, reviewColumn)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		line := make([]any, 0, len(header))
		for _, c := range columns {
			line = append(line, cellValue(row[c]))
		}

		done := byRow[i]
		for n := range most {
			if n >= len(done) {
				line = append(line, make([]any, len(dimensions)+1)...)
				continue
			}
			for _, d := range dimensions {
				line = append(line, labelOf(done[n], d))
			}
			line = append(line, done[n].WorkerID)
		}

		review := "no"
		if slices.Contains(flagged, i) {
			review = "yes"
		}
		line = append(line, review)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ExportSheet, cell, &line); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// labelOf joins the path names of the result's first selection in dimension.
func labelOf(res Result, dimension string) string {
	for _, s := range res.Selections {
		if s.DimensionName == dimension && len(s.PathNames) > 0 {
			return strings.Join(s.PathNames, "_")
		}
	}
	return unlabeled
}

func cellValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}

package annotations

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/selection"
	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "row_annotations", "ra").
	Project("id", "ID").
	Project("subtask_id", "SubtaskID").
	Project("row_index", "RowIndex").
	Project("row_data", "RowData").
	Project("status", "Status").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{Field: "RowIndex"}

func scanAnnotation(s repository.Scanner) (Annotation, error) {
	var (
		a   Annotation
		raw []byte
	)
	err := s.Scan(
		&a.ID,
		&a.SubtaskID,
		&a.RowIndex,
		&raw,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(raw, &a.RowData); err != nil {
		return a, fmt.Errorf("decode row data: %w", err)
	}
	a.Selections = []selection.Selection{}
	return a, nil
}

// selectionsQuery lists the stored selections of every row of a subtask in
// row and position order.
const selectionsQuery = `
	SELECT sel.annotation_id, sel.dimension_name, sel.path_ids, sel.path_names
	FROM annotation_selections sel
	JOIN row_annotations ra ON ra.id = sel.annotation_id
	WHERE ra.subtask_id = $1
	ORDER BY ra.row_index, sel.position`

type storedSelection struct {
	annotationID uuid.UUID
	selection.Selection
}

func scanSelection(s repository.Scanner) (storedSelection, error) {
	var (
		out        storedSelection
		ids, names []byte
	)
	if err := s.Scan(&out.annotationID, &out.DimensionName, &ids, &names); err != nil {
		return out, err
	}
	if err := json.Unmarshal(ids, &out.PathIDs); err != nil {
		return out, fmt.Errorf("decode path ids: %w", err)
	}
	if err := json.Unmarshal(names, &out.PathNames); err != nil {
		return out, fmt.Errorf("decode path names: %w", err)
	}
	return out, nil
}

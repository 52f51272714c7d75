package distribution

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/labelhub/internal/identity"
	"github.com/JaimeStill/labelhub/pkg/events"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

// RecheckReport counts the rows a recheck voted on and how they came out.
type RecheckReport struct {
	Checked  int `json:"checked"`
	Finished int `json:"finished"`
	Flagged  int `json:"flagged"`
}

const staleRowsQuery = `
	SELECT row_index
	FROM task_rows
	WHERE task_id = $1 AND NOT is_finished AND NOT need_to_review
		AND completed_count >= required_count
	ORDER BY row_index`

// Recheck votes on every row that has all its labeling results in but was
// never settled, one row transaction at a time.
func (r *repo) Recheck(ctx context.Context, actor identity.Actor, taskID uuid.UUID) (RecheckReport, error) {
	owner, err := r.owner(ctx, taskID)
	if err != nil {
		return RecheckReport{}, err
	}
	if !actor.CanManage(owner) {
		return RecheckReport{}, identity.ErrForbidden
	}

	indexes, err := repository.QueryMany(ctx, r.db, staleRowsQuery, []any{taskID}, func(s repository.Scanner) (int, error) {
		var i int
		err := s.Scan(&i)
		return i, err
	})
	if err != nil {
		return RecheckReport{}, fmt.Errorf("query unsettled rows: %w", err)
	}

	var report RecheckReport
	for _, index := range indexes {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var voted bool
		finished, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*RowFinished, error) {
			row, err := lockRow(ctx, tx, taskID, index)
			if err != nil {
				return nil, err
			}
			if row.Finished || row.NeedReview || row.Completed < row.Required {
				return nil, nil
			}
			voted = true
			return r.settle(ctx, tx, taskID, index)
		})
		if err != nil {
			return report, fmt.Errorf("recheck row %d: %w", index, err)
		}
		if !voted {
			continue
		}

		report.Checked++
		if finished != nil {
			report.Finished++
			r.publish(ctx, events.SubjectRowFinished, *finished)
		} else {
			report.Flagged++
		}
	}

	r.logger.Info("rows rechecked",
		"task_id", taskID,
		"by", actor.ID,
		"checked", report.Checked,
		"finished", report.Finished,
		"flagged", report.Flagged,
	)
	return report, nil
}

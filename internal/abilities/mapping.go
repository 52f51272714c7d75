package abilities

import (
	"encoding/json"
	"errors"

	"github.com/JaimeStill/labelhub/pkg/query"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "worker_abilities", "wa").
	Project("worker_id", "WorkerID").
	Project("task_id", "TaskID").
	Project("ability_vector", "Scores").
	Project("vector_length", "VectorLength").
	Project("alpha_values", "Alpha").
	Project("correct_counts", "Correct").
	Project("total_counts", "Total").
	Project("avg_score", "AvgScore").
	Project("min_score", "MinScore").
	Project("max_score", "MaxScore").
	Project("total_annotations", "TotalAnnotations").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "AvgScore",
	Descending: true,
}

func scanVector(s repository.Scanner) (Vector, error) {
	var v Vector
	var scores, alpha, correct, total []byte
	err := s.Scan(
		&v.WorkerID,
		&v.TaskID,
		&scores,
		&v.VectorLength,
		&alpha,
		&correct,
		&total,
		&v.AvgScore,
		&v.MinScore,
		&v.MaxScore,
		&v.TotalAnnotations,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return v, err
	}

	err = errors.Join(
		json.Unmarshal(scores, &v.Scores),
		json.Unmarshal(alpha, &v.Alpha),
		json.Unmarshal(correct, &v.Correct),
		json.Unmarshal(total, &v.Total),
	)
	return v, err
}

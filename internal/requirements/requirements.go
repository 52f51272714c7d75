// Package requirements derives the per-row requirement vectors that weight
// batch distribution: how much each first-level taxonomy category matters for
// labeling a row. Rows start uniform; a model can score them after creation.
package requirements

import (
	"github.com/google/uuid"
)

// MissingScore is given to a category a model left out of a row's scores.
const MissingScore = 0.4

// Request asks for the requirement vectors of a newly created task.
type Request struct {
	TaskID      uuid.UUID `json:"task_id"`
	TaxonomyKey string    `json:"taxonomy_key"`
	DatasetKey  string    `json:"dataset_key"`
}

// Uniform weights every category equally.
func Uniform(categories []string) map[string]float64 {
	v := make(map[string]float64, len(categories))
	for _, c := range categories {
		v[c] = 1
	}
	return v
}

// normalize keeps exactly the given categories, clamping scores into [0, 1].
func normalize(categories []string, scores map[string]float64) map[string]float64 {
	v := make(map[string]float64, len(categories))
	for _, c := range categories {
		s, ok := scores[c]
		if !ok {
			s = MissingScore
		}
		v[c] = min(max(s, 0), 1)
	}
	return v
}

// Package abilities maintains per-worker, per-category skill estimates for a
// task. Each category carries a Beta(alpha, 1) prior whose mean, updated with
// observed correct and total counts, is the worker's score.
package abilities

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Model parameters.
const (
	ExpertiseAlpha = 10.0
	BaseAlpha      = 1.0
	Beta           = 1.0
	MaxExpertise   = 3
)

// Vector is a worker's ability estimate for one task.
type Vector struct {
	WorkerID         string             `json:"worker_id"`
	TaskID           uuid.UUID          `json:"task_id"`
	Scores           map[string]float64 `json:"ability_vector"`
	VectorLength     int                `json:"vector_length"`
	Alpha            map[string]float64 `json:"alpha_values"`
	Correct          map[string]int     `json:"correct_counts"`
	Total            map[string]int     `json:"total_counts"`
	AvgScore         float64            `json:"avg_score"`
	MinScore         float64            `json:"min_score"`
	MaxScore         float64            `json:"max_score"`
	TotalAnnotations int                `json:"total_annotations"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Initialize seeds a vector over categories. Categories named in expertise get
// ExpertiseAlpha, the rest BaseAlpha; all counts start at zero. It reports
// false when there are no categories, in which case nothing should be stored.
func Initialize(workerID string, taskID uuid.UUID, categories, expertise []string) (Vector, bool) {
	if len(categories) == 0 {
		return Vector{}, false
	}

	v := Vector{
		WorkerID:     workerID,
		TaskID:       taskID,
		Scores:       make(map[string]float64, len(categories)),
		VectorLength: len(categories),
		Alpha:        make(map[string]float64, len(categories)),
		Correct:      make(map[string]int, len(categories)),
		Total:        make(map[string]int, len(categories)),
	}

	for _, c := range categories {
		alpha := BaseAlpha
		if slices.Contains(expertise, c) {
			alpha = ExpertiseAlpha
		}
		v.Alpha[c] = alpha
		v.Correct[c] = 0
		v.Total[c] = 0
		v.Scores[c] = score(0, 0, alpha)
	}
	v.aggregate()

	return v, true
}

// Score returns the worker's score for category.
func (v *Vector) Score(category string) (float64, bool) {
	s, ok := v.Scores[category]
	return s, ok
}

// Record adds one judged observation for category. A category the vector has
// not seen joins with BaseAlpha.
func (v *Vector) Record(category string, correct bool) {
	v.ensure(category)
	v.Total[category]++
	if correct {
		v.Correct[category]++
	}
	v.TotalAnnotations++
	v.rescore(category)
}

// Reverse removes one judged observation for category. Counts never drop
// below zero.
func (v *Vector) Reverse(category string, correct bool) {
	v.ensure(category)
	v.Total[category] = max(v.Total[category]-1, 0)
	if correct {
		v.Correct[category] = max(v.Correct[category]-1, 0)
	}
	v.Correct[category] = min(v.Correct[category], v.Total[category])
	v.TotalAnnotations = max(v.TotalAnnotations-1, 0)
	v.rescore(category)
}

func (v *Vector) ensure(category string) {
	if v.Scores == nil {
		v.Scores = make(map[string]float64)
	}
	if v.Alpha == nil {
		v.Alpha = make(map[string]float64)
	}
	if v.Correct == nil {
		v.Correct = make(map[string]int)
	}
	if v.Total == nil {
		v.Total = make(map[string]int)
	}
	if _, ok := v.Alpha[category]; !ok {
		v.Alpha[category] = BaseAlpha
		v.Scores[category] = score(0, 0, BaseAlpha)
		v.VectorLength = len(v.Alpha)
	}
}

func (v *Vector) rescore(category string) {
	v.Scores[category] = score(v.Correct[category], v.Total[category], v.Alpha[category])
	v.aggregate()
}

func (v *Vector) aggregate() {
	if len(v.Scores) == 0 {
		v.AvgScore, v.MinScore, v.MaxScore = 0, 0, 0
		return
	}

	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, s := range v.Scores {
		sum += s
		lo = min(lo, s)
		hi = max(hi, s)
	}

	v.AvgScore = round5(sum / float64(len(v.Scores)))
	v.MinScore = round5(lo)
	v.MaxScore = round5(hi)
}

func score(correct, total int, alpha float64) float64 {
	return round5((float64(correct) + alpha) / (float64(total) + alpha + Beta))
}

func round5(x float64) float64 {
	return math.Round(x*1e5) / 1e5
}

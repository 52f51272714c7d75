package distribution

import (
	"slices"
	"strings"

	"github.com/JaimeStill/labelhub/internal/abilities"
	"github.com/JaimeStill/labelhub/internal/selection"
)

// fallbackWeight is the vote weight of a worker with no ability estimate.
const fallbackWeight = 0.5

// Ballot is one finished result's vote on a row.
type Ballot struct {
	WorkerID string
	Label    string
	Category string
	Weight   float64
}

// Verdict is the outcome of a vote.
type Verdict struct {
	Label    string  `json:"label"`
	Category string  `json:"category"`
	Share    float64 `json:"share"`
	Agreed   bool    `json:"agreed"`
}

// Label reduces a selection list to an order-independent vote key.
func Label(sels []selection.Selection) string {
	keys := make([]string, 0, len(sels))
	for _, s := range sels {
		keys = append(keys, s.Key())
	}
	slices.Sort(keys)
	return strings.Join(slices.Compact(keys), ";")
}

// Weight is a worker's vote weight for category: their score in it, else
// their average score, else fallbackWeight.
func Weight(v *abilities.Vector, category string) float64 {
	if v == nil {
		return fallbackWeight
	}
	if s, ok := v.Score(category); ok {
		return s
	}
	if len(v.Scores) > 0 {
		return v.AvgScore
	}
	return fallbackWeight
}

// Decide tallies ballots by label. The heaviest label wins, ties going to the
// label whose first ballot came earliest, and the row is agreed when the
// winner's share of the total weight reaches threshold.
func Decide(ballots []Ballot, threshold float64) Verdict {
	var (
		order  []string
		totals = make(map[string]float64)
		cats   = make(map[string]string)
		sum    float64
	)
	for _, b := range ballots {
		if _, seen := totals[b.Label]; !seen {
			order = append(order, b.Label)
			cats[b.Label] = b.Category
		}
		totals[b.Label] += b.Weight
		sum += b.Weight
	}
	if len(order) == 0 || sum <= 0 {
		return Verdict{}
	}

	winner := order[0]
	for _, label := range order[1:] {
		if totals[label] > totals[winner] {
			winner = label
		}
	}

	share := totals[winner] / sum
	return Verdict{
		Label:    winner,
		Category: cats[winner],
		Share:    share,
		Agreed:   share >= threshold,
	}
}

// Candidate is a worker eligible to receive a row.
type Candidate struct {
	WorkerID string
	Scores   map[string]float64
}

// Match is the dot product of a row's requirement vector and a worker's scores.
func Match(requirement, scores map[string]float64) float64 {
	var dot float64
	for k, r := range requirement {
		dot += r * scores[k]
	}
	return dot
}

// Rank orders candidates by descending match against requirement, breaking
// ties by worker id.
func Rank(requirement map[string]float64, candidates []Candidate) []Candidate {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		ma, mb := Match(requirement, a.Scores), Match(requirement, b.Scores)
		switch {
		case ma > mb:
			return -1
		case ma < mb:
			return 1
		default:
			return strings.Compare(a.WorkerID, b.WorkerID)
		}
	})
	return ranked
}

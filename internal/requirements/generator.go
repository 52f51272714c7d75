package requirements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/pkg/formatting"
	"github.com/JaimeStill/labelhub/pkg/resilience"
)

const scoreOperation = "requirements.score"

// Generator scores dataset rows against a taxonomy's first-level categories
// through a model, a batch of rows per call.
type Generator struct {
	completer   Completer
	executor    *resilience.Executor
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewGenerator creates a Generator sending batchSize rows per call with at most
// concurrency calls in flight.
func NewGenerator(
	completer Completer,
	executor *resilience.Executor,
	batchSize, concurrency int,
	logger *slog.Logger,
) *Generator {
	return &Generator{
		completer:   completer,
		executor:    executor,
		batchSize:   max(batchSize, 1),
		concurrency: max(concurrency, 1),
		logger:      logger.With("system", "requirements"),
	}
}

// Vectors returns one vector per row, aligned with rows. A row is nil when its
// batch failed or the reply did not reach it; such rows keep their uniform
// vector.
func (g *Generator) Vectors(ctx context.Context, categories []string, rows []datasets.Row) []map[string]float64 {
	out := make([]map[string]float64, len(rows))
	if len(categories) == 0 {
		return out
	}

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)

	for start := 0; start < len(rows); start += g.batchSize {
		end := min(start+g.batchSize, len(rows))
		eg.Go(func() error {
			scores, err := g.score(ctx, categories, rows[start:end])
			if err != nil {
				g.logger.Warn("row scoring failed, keeping uniform vectors",
					"start", start,
					"end", end,
					"error", err,
				)
				return nil
			}
			for i, s := range scores {
				if i >= end-start {
					break
				}
				out[start+i] = normalize(categories, s)
			}
			if len(scores) < end-start {
				g.logger.Warn("model scored fewer rows than sent",
					"start", start,
					"sent", end-start,
					"scored", len(scores),
				)
			}
			return nil
		})
	}
	eg.Wait()

	return out
}

func (g *Generator) score(ctx context.Context, categories []string, rows []datasets.Row) ([]map[string]float64, error) {
	prompt, err := buildPrompt(categories, rows)
	if err != nil {
		return nil, err
	}

	var scores []map[string]float64
	err = g.executor.Execute(ctx, scoreOperation, func(ctx context.Context) error {
		reply, err := g.completer.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		scores, err = formatting.ParseJSON[[]map[string]float64](reply)
		return err
	}, classify)
	return scores, err
}

func classify(err error) resilience.Classification {
	if errors.Is(err, context.Canceled) {
		return resilience.Permanent(err)
	}
	return resilience.Classification{Retryable: true, RecordFailure: true}
}

func buildPrompt(categories []string, rows []datasets.Row) (string, error) {
	cats, err := json.Marshal(categories)
	if err != nil {
		return "", fmt.Errorf("marshal categories: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Rate how much knowledge of each category a labeler needs for each of the %d rows below.\n\n", len(rows))
	fmt.Fprintf(&sb, "Categories: %s\n\nRows:\n", cats)
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return "", fmt.Errorf("marshal row: %w", err)
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, data)
	}
	fmt.Fprintf(&sb, "\nScore every category between 0 and 1: 0.8-0.9 when the row is squarely in the category, "+
		"0.5-0.7 when it needs that background, 0.3-0.4 for a slight link and 0.1-0.2 when unrelated. "+
		"Rows must not all receive the same scores.\n\n")
	fmt.Fprintf(&sb, "Reply with only a JSON array of %d objects in row order, each mapping every category name to its score.", len(rows))
	return sb.String(), nil
}

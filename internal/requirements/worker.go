package requirements

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/JaimeStill/labelhub/internal/datasets"
	"github.com/JaimeStill/labelhub/internal/taxonomy"
	"github.com/JaimeStill/labelhub/pkg/events"
	"github.com/JaimeStill/labelhub/pkg/lifecycle"
	"github.com/JaimeStill/labelhub/pkg/repository"
)

// Queue is the queue group whose members score new tasks, so each task is
// scored by one replica.
const Queue = "requirements"

const updateVectorQuery = `
	UPDATE task_rows
	SET requirement_vector = $3, updated_at = NOW()
	WHERE task_id = $1 AND row_index = $2`

// Worker scores the rows of each created task and stores the vectors.
type Worker struct {
	db        *sql.DB
	bus       events.Bus
	taxa      taxonomy.Provider
	rows      datasets.Provider
	generator *Generator
	logger    *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(
	db *sql.DB,
	bus events.Bus,
	taxa taxonomy.Provider,
	rows datasets.Provider,
	generator *Generator,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		db:        db,
		bus:       bus,
		taxa:      taxa,
		rows:      rows,
		generator: generator,
		logger:    logger.With("system", "requirements"),
	}
}

// Start subscribes to task creation until the coordinator shuts down.
func (w *Worker) Start(lc *lifecycle.Coordinator) error {
	if err := w.bus.QueueSubscribe(lc.Context(), events.SubjectTaskCreated, Queue, w.handle); err != nil {
		return fmt.Errorf("subscribe task created: %w", err)
	}
	w.logger.Info("requirement worker started")
	return nil
}

func (w *Worker) handle(ctx context.Context, data []byte) error {
	env, err := events.Decode[Request](data)
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	_, err = w.Generate(ctx, env.Data)
	return err
}

// Generate scores every row of the requested task and returns how many rows
// received a generated vector.
func (w *Worker) Generate(ctx context.Context, req Request) (int, error) {
	tax, err := w.taxa.Load(ctx, req.TaxonomyKey)
	if err != nil {
		return 0, err
	}
	rows, err := w.rows.Rows(ctx, req.DatasetKey, 0, math.MaxInt)
	if err != nil {
		return 0, err
	}

	vectors := w.generator.Vectors(ctx, tax.FirstLevelNames(), rows)

	updated, err := repository.WithTx(ctx, w.db, func(tx *sql.Tx) (int, error) {
		var n int64
		for i, v := range vectors {
			if v == nil {
				continue
			}
			payload, err := json.Marshal(v)
			if err != nil {
				return 0, fmt.Errorf("marshal vector: %w", err)
			}
			c, err := repository.ExecCount(ctx, tx, updateVectorQuery, req.TaskID, i, payload)
			if err != nil {
				return 0, fmt.Errorf("update row %d vector: %w", i, err)
			}
			n += c
		}
		return int(n), nil
	})
	if err != nil {
		return 0, err
	}

	w.logger.Info("requirement vectors generated",
		"task_id", req.TaskID,
		"rows", len(rows),
		"updated", updated,
	)
	return updated, nil
}

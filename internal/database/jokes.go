package database

import (
	"context"
	"fmt"

	"joke-pipeline/internal/metrics"
	"joke-pipeline/internal/models"
	"joke-pipeline/pkg/logger"
)

const insertJokeQuery = `
	INSERT INTO random_joke_api (type, setup, punchline, joke_id, timestamp)
	VALUES ($1, $2, $3, $4, $5)
`

type JokeRepository struct {
	db Execer
}

func NewJokeRepository(db Execer) *JokeRepository {
	return &JokeRepository{db: db}
}

func (r *JokeRepository) Insert(ctx context.Context, joke models.JokeRecord) error {
	_, err := r.db.Exec(ctx, insertJokeQuery,
		joke.Type, joke.Setup, joke.Punchline, joke.ID, joke.Timestamp,
	)
	return err
}

// InsertAll writes one row per record in input order, each as its own
// statement. It stops at the first failure and reports how many rows were
// written before it.
func (r *JokeRepository) InsertAll(ctx context.Context, jokes []models.JokeRecord) (int, error) {
	if len(jokes) == 0 {
		logger.Info("No jokes to insert")
		return 0, nil
	}

	for i, joke := range jokes {
		if err := r.Insert(ctx, joke); err != nil {
			logger.Error("Failed to insert joke",
				logger.Err(err),
				logger.Int("index", i),
				logger.Int64("joke_id", joke.ID),
			)
			return i, fmt.Errorf("failed to insert joke %d (joke_id=%d): %w", i, joke.ID, err)
		}
		metrics.JokesInserted.Inc()
	}

	logger.Info("Jokes inserted", logger.Int("count", len(jokes)))
	return len(jokes), nil
}
